package weaviate

import (
	"context"

	"github.com/weaviate/weaviate/entities/models"
)

// SchemaClient is the subset of Weaviate schema operations the store needs.
type SchemaClient interface {
	ClassExists(ctx context.Context, className string) (bool, error)
	CreateClass(ctx context.Context, class *models.Class) error
	GetClass(ctx context.Context, className string) (*models.Class, error)
	AddProperty(ctx context.Context, className string, property *models.Property) error
}

func recordProperties() []*models.Property {
	return []*models.Property{
		{Name: "content", DataType: []string{"text"}},
		{Name: "recordId", DataType: []string{"string"}},
		{Name: "documentId", DataType: []string{"string"}},
		{Name: "chunkIndex", DataType: []string{"int"}},
		{Name: "metadata", DataType: []string{"text"}},
	}
}

// EnsureClass creates className for collection if missing, or adds any
// record property an older class lacks. Vectors are always supplied by the
// caller, so the class has no vectorizer.
func EnsureClass(ctx context.Context, client SchemaClient, className, collection string) error {
	exists, err := client.ClassExists(ctx, className)
	if err != nil {
		return err
	}

	properties := recordProperties()
	if !exists {
		return client.CreateClass(ctx, &models.Class{
			Class:       className,
			Description: collection,
			Vectorizer:  "none",
			Properties:  properties,
		})
	}

	class, err := client.GetClass(ctx, className)
	if err != nil {
		return err
	}

	existing := make(map[string]bool)
	for _, p := range class.Properties {
		existing[p.Name] = true
	}
	for _, p := range properties {
		if !existing[p.Name] {
			if err := client.AddProperty(ctx, className, p); err != nil {
				return err
			}
		}
	}
	return nil
}
