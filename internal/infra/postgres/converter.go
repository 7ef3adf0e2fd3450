package postgres

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/samber/mo"
)

// OptionUUIDToPgtype converts mo.Option[uuid.UUID] to pgtype.UUID (absent -> NULL)
func OptionUUIDToPgtype(id mo.Option[uuid.UUID]) pgtype.UUID {
	v, ok := id.Get()
	if !ok {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: v, Valid: true}
}

// StringPtrToPgtext converts *string to pgtype.Text
func StringPtrToPgtext(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{}
	}
	return pgtype.Text{String: *s, Valid: true}
}

// PgtextToStringPtr converts pgtype.Text to *string
func PgtextToStringPtr(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	return &t.String
}

// OptionStringToPgtext converts mo.Option[string] to pgtype.Text (absent -> NULL)
func OptionStringToPgtext(s mo.Option[string]) pgtype.Text {
	v, ok := s.Get()
	if !ok {
		return pgtype.Text{}
	}
	return pgtype.Text{String: v, Valid: true}
}

// OptionFloatToPgtype converts mo.Option[float64] to pgtype.Float8 (absent -> NULL)
func OptionFloatToPgtype(f mo.Option[float64]) pgtype.Float8 {
	v, ok := f.Get()
	if !ok {
		return pgtype.Float8{}
	}
	return pgtype.Float8{Float64: v, Valid: true}
}

// OptionBoolToPgtype converts mo.Option[bool] to pgtype.Bool (absent -> NULL)
func OptionBoolToPgtype(b mo.Option[bool]) pgtype.Bool {
	v, ok := b.Get()
	if !ok {
		return pgtype.Bool{}
	}
	return pgtype.Bool{Bool: v, Valid: true}
}

// PgtypeToTimePtr converts pgtype.Timestamptz to *time.Time
func PgtypeToTimePtr(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}
