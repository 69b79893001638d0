package cache

import (
	"testing"
	"time"
)

func TestOperationListFilenameEquality(t *testing.T) {
	id := Identifier("source-1")
	a := NewOperationList(id, "jpg", Operation{Name: "resize", Params: map[string]string{"w": "100", "h": "50"}})
	b := NewOperationList(id, "jpg", Operation{Name: "resize", Params: map[string]string{"h": "50", "w": "100"}})

	if a.Filename() != b.Filename() {
		t.Errorf("Filename() differs for equivalent operation lists: %q vs %q", a.Filename(), b.Filename())
	}

	c := NewOperationList(id, "png", Operation{Name: "resize", Params: map[string]string{"w": "100", "h": "50"}})
	if a.Filename() == c.Filename() {
		t.Errorf("Filename() matched across different formats: %q", a.Filename())
	}
}

func TestOperationListFilenameEmbedsIdentifierHash(t *testing.T) {
	id := Identifier("source-2")
	ol := NewOperationList(id, "jpg")
	if got, want := ol.Filename()[:len(id.MD5Hex())], id.MD5Hex(); got != want {
		t.Errorf("Filename() = %q, want prefix %q", ol.Filename(), want)
	}
}

func TestInfoJSONRoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	info := Info{
		Identifier:   "source-3",
		Format:       "jpg",
		Width:        800,
		Height:       600,
		SerializedAt: &now,
	}

	data, err := info.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}

	got, err := InfoFromJSON(data)
	if err != nil {
		t.Fatalf("InfoFromJSON() error = %v", err)
	}
	if got.Identifier != info.Identifier || got.Width != info.Width || got.Height != info.Height {
		t.Errorf("InfoFromJSON() = %+v, want %+v", got, info)
	}
	if got.SerializedAt == nil || !got.SerializedAt.Equal(*info.SerializedAt) {
		t.Errorf("SerializedAt round-trip mismatch: got %v, want %v", got.SerializedAt, info.SerializedAt)
	}
}

func TestInfoFromJSONInvalid(t *testing.T) {
	if _, err := InfoFromJSON([]byte("not json")); err == nil {
		t.Error("InfoFromJSON() with invalid JSON, want error")
	}
}

func TestCacheKeysDistinguishInfoFromVariant(t *testing.T) {
	id := Identifier("source-4")
	ol := NewOperationList(id, "jpg")

	if infoKey(id) == variantKey(ol) {
		t.Error("infoKey and variantKey collided")
	}
}
