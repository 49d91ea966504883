package domain

import "testing"

func TestCreateDesignRequestValidate(t *testing.T) {
	valid := CreateDesignRequest{
		RoomType:    "Kitchen",
		DesignStyle: "Modern",
		ImageData:   "aGVsbG8=",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid request, got error: %v", err)
	}

	empty := CreateDesignRequest{}
	if err := empty.Validate(); err == nil {
		t.Fatal("expected validation error for empty request")
	}

	unknownRoom := CreateDesignRequest{
		RoomType:    "garage",
		DesignStyle: "modern",
		ImageData:   "aGVsbG8=",
	}
	if err := unknownRoom.Validate(); err == nil {
		t.Fatal("expected validation error for unsupported room_type")
	}

	unknownStyle := CreateDesignRequest{
		RoomType:    "kitchen",
		DesignStyle: "brutalist",
		ImageData:   "aGVsbG8=",
	}
	if err := unknownStyle.Validate(); err == nil {
		t.Fatal("expected validation error for unsupported design_style")
	}

	missingImage := CreateDesignRequest{
		RoomType:    "kitchen",
		DesignStyle: "modern",
	}
	if err := missingImage.Validate(); err == nil {
		t.Fatal("expected validation error for missing image_data")
	}
}

func TestProviderAttributable(t *testing.T) {
	for _, reason := range []string{FailureRegionRestricted, FailureQuotaExhausted, FailureProviderError} {
		if !ProviderAttributable(reason) {
			t.Fatalf("expected %s to be provider-attributable", reason)
		}
	}
	if ProviderAttributable(FailureInvalidImage) {
		t.Fatal("expected invalid_image to not be provider-attributable")
	}
	if ProviderAttributable("") {
		t.Fatal("expected empty reason to not be provider-attributable")
	}
}
