package mongo

import (
	"testing"

	"checkpost/internal/migrations/mongo/validators"

	"go.mongodb.org/mongo-driver/bson"
)

func TestStopIndexesAreNamedAndUnique(t *testing.T) {
	seen := make(map[string]bool)
	for _, idx := range StopIndexes {
		if idx.Options == nil || idx.Options.Name == nil {
			t.Fatalf("index %v has no name", idx.Keys)
		}
		name := *idx.Options.Name
		if seen[name] {
			t.Errorf("duplicate index name %q", name)
		}
		seen[name] = true
	}
}

func TestStopValidatorRequiresBookkeeping(t *testing.T) {
	schema, ok := validators.StopValidator["$jsonSchema"].(bson.M)
	if !ok {
		t.Fatal("validator has no $jsonSchema")
	}

	required, _ := schema["required"].([]string)
	want := map[string]bool{"ingest_batch_id": true, "ingested_at": true}
	for _, f := range required {
		delete(want, f)
	}
	if len(want) != 0 {
		t.Errorf("missing required fields: %v", want)
	}
	if schema["additionalProperties"] != true {
		t.Error("stop documents must allow extra columns")
	}
}
