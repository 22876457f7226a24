package editsync

import (
	"encoding/json"
	"testing"

	"github.com/go-playground/assert/v2"

	"google.golang.org/protobuf/proto"
)

func TestDocumentSnapshotIsolation(t *testing.T) {
	document := &Document{
		DocumentId: NewId(),
		Version:    3,
		Data: RequireDocumentData(map[string]any{
			"base_url": "/v1",
			"resources": []any{
				map[string]any{"name": "users"},
				map[string]any{"name": "orders"},
			},
		}),
	}

	snapshot := document.Snapshot()
	assert.Equal(t, snapshot.DocumentId, document.DocumentId)
	assert.Equal(t, snapshot.Version, document.Version)
	assert.Equal(t, proto.Equal(snapshot.Data.Struct, document.Data.Struct), true)

	// edits to the original never reach an already taken snapshot
	err := document.Data.SetField("base_url", RequireFieldValue("/v2"))
	assert.Equal(t, err, nil)
	err = document.Data.SetField("resources.0.name", RequireFieldValue("accounts"))
	assert.Equal(t, err, nil)

	value, ok := snapshot.Data.GetField("base_url")
	assert.Equal(t, ok, true)
	assert.Equal(t, value.GetStringValue(), "/v1")

	value, ok = snapshot.Data.GetField("resources.0.name")
	assert.Equal(t, ok, true)
	assert.Equal(t, value.GetStringValue(), "users")
}

func TestDocumentDataFieldOps(t *testing.T) {
	data := RequireDocumentData(map[string]any{
		"resources": []any{"a", "b", "c"},
	})

	// set creates intermediate structs
	err := data.SetField("entities.user.name", RequireFieldValue("User"))
	assert.Equal(t, err, nil)
	value, ok := data.GetField("entities.user.name")
	assert.Equal(t, ok, true)
	assert.Equal(t, value.GetStringValue(), "User")

	// set by list index
	err = data.SetField("resources.1", RequireFieldValue("b2"))
	assert.Equal(t, err, nil)
	value, ok = data.GetField("resources.1")
	assert.Equal(t, ok, true)
	assert.Equal(t, value.GetStringValue(), "b2")

	// delete a list element splices it out
	err = data.DeleteField("resources.1")
	assert.Equal(t, err, nil)
	value, ok = data.GetField("resources.1")
	assert.Equal(t, ok, true)
	assert.Equal(t, value.GetStringValue(), "c")
	_, ok = data.GetField("resources.2")
	assert.Equal(t, ok, false)

	// delete a struct field
	err = data.DeleteField("entities.user")
	assert.Equal(t, err, nil)
	_, ok = data.GetField("entities.user")
	assert.Equal(t, ok, false)

	// delete of a missing path is an error
	err = data.DeleteField("entities.user")
	assert.NotEqual(t, err, nil)

	// append creates the list when missing
	err = data.AppendField("screens", RequireFieldValue("home"))
	assert.Equal(t, err, nil)
	err = data.AppendField("screens", RequireFieldValue("settings"))
	assert.Equal(t, err, nil)
	value, ok = data.GetField("screens.1")
	assert.Equal(t, ok, true)
	assert.Equal(t, value.GetStringValue(), "settings")

	// paths blocked by a scalar are an error
	err = data.SetField("resources.0.name", RequireFieldValue("x"))
	assert.NotEqual(t, err, nil)

	// out of range list index is an error
	err = data.SetField("resources.9", RequireFieldValue("x"))
	assert.NotEqual(t, err, nil)
}

func TestDocumentJsonCodec(t *testing.T) {
	document := &Document{
		DocumentId: NewId(),
		Version:    7,
		Data: RequireDocumentData(map[string]any{
			"base_url": "/v2",
			"team_size": 3,
			"resources": []any{
				map[string]any{"name": "users", "fields": []any{"id", "email"}},
			},
		}),
	}

	documentJson, err := json.Marshal(document)
	assert.Equal(t, err, nil)

	decoded := &Document{}
	err = json.Unmarshal(documentJson, decoded)
	assert.Equal(t, err, nil)

	assert.Equal(t, decoded.DocumentId, document.DocumentId)
	assert.Equal(t, decoded.Version, document.Version)
	assert.Equal(t, proto.Equal(decoded.Data.Struct, document.Data.Struct), true)
}

func TestFieldEdits(t *testing.T) {
	data := RequireDocumentData(map[string]any{"base_url": "/v1"})

	edit, description, err := SetFieldEdit("base_url", "/v2")
	assert.Equal(t, err, nil)
	assert.Equal(t, description.Op, EditOpSet)
	assert.Equal(t, description.Path, "base_url")
	assert.NotEqual(t, description.MutationId, Id{})

	next, err := edit(data)
	assert.Equal(t, err, nil)
	value, ok := next.GetField("base_url")
	assert.Equal(t, ok, true)
	assert.Equal(t, value.GetStringValue(), "/v2")

	deleteEdit, deleteDescription := DeleteFieldEdit("missing")
	assert.Equal(t, deleteDescription.Op, EditOpDelete)
	_, err = deleteEdit(data)
	assert.NotEqual(t, err, nil)
}
