package storage

import "testing"

func TestBuildProductImagePath(t *testing.T) {
	path, err := BuildProductImagePath("prod123", "upload456", "front.jpg")
	if err != nil {
		t.Fatalf("BuildProductImagePath returned error: %v", err)
	}
	expected := "products/prod123/images/upload456/front.jpg"
	if path != expected {
		t.Fatalf("expected path %q, got %q", expected, path)
	}
}

func TestBuildProductImagePathTrimsSegments(t *testing.T) {
	path, err := BuildProductImagePath("  prod123  ", "upload456", " front.jpg ")
	if err != nil {
		t.Fatalf("BuildProductImagePath returned error: %v", err)
	}
	expected := "products/prod123/images/upload456/front.jpg"
	if path != expected {
		t.Fatalf("expected path %q, got %q", expected, path)
	}
}

func TestBuildProductImagePathRejectsInvalidSegments(t *testing.T) {
	cases := []struct {
		name      string
		productID string
		uploadID  string
		fileName  string
	}{
		{name: "empty product", productID: "", uploadID: "u1", fileName: "a.png"},
		{name: "traversal in product", productID: "../bad", uploadID: "u1", fileName: "a.png"},
		{name: "slash in upload", productID: "p1", uploadID: "u/1", fileName: "a.png"},
		{name: "empty file name", productID: "p1", uploadID: "u1", fileName: "   "},
		{name: "backslash in file name", productID: "p1", uploadID: "u1", fileName: "a\\b.png"},
		{name: "traversal in file name", productID: "p1", uploadID: "u1", fileName: "..png.."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := BuildProductImagePath(tc.productID, tc.uploadID, tc.fileName); err == nil {
				t.Fatalf("expected error for %s", tc.name)
			}
		})
	}
}
