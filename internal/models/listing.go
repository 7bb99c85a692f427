package models

import "time"

// StatusCatID is the categorical listing status used across sync and
// lifecycle reconciliation. Stored as a string in local SQL (see
// SPEC_FULL.md / spec.md §9 open question on StatusCatID typing) but
// compared numerically in DMQL queries.
type StatusCatID string

const (
	StatusActive    StatusCatID = "1"
	StatusSold      StatusCatID = "2"
	StatusPending   StatusCatID = "3"
	StatusWithdrawn StatusCatID = "4"
	StatusExpired   StatusCatID = "5"
)

// ListingRecord is one row of a resource/class table, as relevant to the
// photo and lifecycle subsystems (the full row also carries every
// resource-specific column, persisted generically by the sync engine).
type ListingRecord struct {
	ListingID       string
	PropertyType    string // the class name, e.g. RE_1
	StatusCatID     StatusCatID
	LastPhotoUpdate *time.Time
	PictureCount    int
}

// PhotoJobStatus is the lifecycle state of a PhotoJob.
type PhotoJobStatus string

const (
	PhotoJobProcessing PhotoJobStatus = "processing"
	PhotoJobCompleted  PhotoJobStatus = "completed"
	PhotoJobFailed     PhotoJobStatus = "failed"
)

// PhotoJob tracks per-listing photo processing state.
type PhotoJob struct {
	ListingID         string         `db:"listing_id"`
	PropertyType      string         `db:"property_type"`
	Status            PhotoJobStatus `db:"status"`
	LastProcessedAt   *time.Time     `db:"last_processed_at"`
	NeedsReprocessing bool           `db:"needs_reprocessing"`
	RetryCount        int            `db:"retry_count"`
	ErrorMessage      string         `db:"error_message"`
	PhotoDataJSON     string         `db:"photo_data_json"`
}

// Variant is one of the five size presets produced by the image pipeline.
type Variant string

const (
	VariantOriginal Variant = "original"
	VariantLarge    Variant = "large"
	VariantMedium   Variant = "medium"
	VariantSmall    Variant = "small"
	VariantThumb    Variant = "thumb"
)

// AllVariants is the complete size ladder; a PhotoJob is only "completed"
// once every one of these exists for every object_id (see invariant in
// spec.md §3.2).
var AllVariants = []Variant{VariantOriginal, VariantLarge, VariantMedium, VariantSmall, VariantThumb}

// VariantAsset describes one encoded size variant of a source photo.
type VariantAsset struct {
	Variant  Variant `json:"variant"`
	URL      string  `json:"url"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	ByteSize int     `json:"byte_size"`
	Format   string  `json:"format"`
}

// ProcessedPhoto is the fully-materialized record for one source photo.
type ProcessedPhoto struct {
	ObjectID         string            `json:"object_id"`
	DominantColorRGB [3]uint8          `json:"dominant_color_rgb"`
	Variants         []VariantAsset    `json:"variants"`
	SourceHeaders    map[string]string `json:"source_headers"`
}
