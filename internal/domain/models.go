// Package domain defines the persistence models for the miniature collection:
// miniatures, their type/category taxonomy, tags, the product hierarchy
// (company → product line → product set), and the audit log. These types are
// mapped with GORM and form the core data layer of the inventory backend.
package domain

import (
	"time"
)

// Miniature is the central entity of the collection. Each miniature carries
// descriptive fields, references into the lookup tables, a set of type
// assignments (exactly one of which is the non-proxy "main" type), and a set
// of free-form tags.
//
// Fields:
//   - ID: integer primary key assigned by the database.
//   - Name / Description / Location: descriptive fields; Name is indexed and
//     is the stable sort key for listings.
//   - Quantity: number of physical copies, never negative.
//   - PaintedByID / BaseSizeID: required lookups, defaulted from config when
//     the client omits them.
//   - ProductSetID: optional link into the product taxonomy.
//   - InUse: nullable timestamp; non-nil means the miniature is currently
//     checked out.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
type Miniature struct {
	ID           int64      `json:"id"            gorm:"primaryKey;autoIncrement"`
	Name         string     `json:"name"          gorm:"type:varchar(255);not null;index:idx_miniature_name"`
	Description  string     `json:"description"   gorm:"type:text"`
	Location     string     `json:"location"      gorm:"type:varchar(255);not null;default:''"`
	Quantity     int        `json:"quantity"      gorm:"not null;default:1;check:quantity >= 0"`
	PaintedByID  int64      `json:"painted_by_id" gorm:"not null;index"`
	BaseSizeID   int64      `json:"base_size_id"  gorm:"not null;index"`
	ProductSetID *int64     `json:"product_set_id,omitempty" gorm:"index"`
	InUse        *time.Time `json:"in_use,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	// Types are the per-miniature type assignments, carrying the proxy flag.
	// Cascade-deleted with the miniature.
	Types []MiniatureTypeLink `json:"types,omitempty" gorm:"foreignKey:MiniatureID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`

	// Tags is the plain many-to-many tag association.
	Tags []Tag `json:"tags,omitempty" gorm:"many2many:miniature_tags;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`

	// Lookup associations, preloaded for listing/detail reads.
	PaintedBy  *PaintedBy  `json:"painted_by,omitempty"  gorm:"foreignKey:PaintedByID"`
	BaseSize   *BaseSize   `json:"base_size,omitempty"   gorm:"foreignKey:BaseSizeID"`
	ProductSet *ProductSet `json:"product_set,omitempty" gorm:"foreignKey:ProductSetID"`
}

// TableName returns the database table name for Miniature.
func (Miniature) TableName() string { return "miniatures" }

// MiniatureType is a taxonomy node ("Infantry", "Monster", …). Types are
// shared across miniatures and may belong to any number of categories.
// Name uniqueness is enforced case-insensitively at write time by the
// taxonomy service, not by a database constraint.
type MiniatureType struct {
	ID        int64     `json:"id"   gorm:"primaryKey;autoIncrement"`
	Name      string    `json:"name" gorm:"type:varchar(255);not null;index"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Categories groups types into a flat second level.
	Categories []Category `json:"categories,omitempty" gorm:"many2many:type_categories;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for MiniatureType.
func (MiniatureType) TableName() string { return "types" }

// MiniatureTypeLink associates a miniature with a type. ProxyType=false marks
// the single "main" type of the miniature; every other assignment is a proxy.
// The write service maintains the at-most-one-main invariant.
type MiniatureTypeLink struct {
	MiniatureID int64 `json:"miniature_id" gorm:"primaryKey;autoIncrement:false"`
	TypeID      int64 `json:"type_id"      gorm:"primaryKey;autoIncrement:false"`
	ProxyType   bool  `json:"proxy_type"   gorm:"not null;default:false"`

	Type *MiniatureType `json:"type,omitempty" gorm:"foreignKey:TypeID"`
}

// TableName returns the database table name for MiniatureTypeLink.
func (MiniatureTypeLink) TableName() string { return "miniature_type_links" }

// Category is a flat taxonomy node grouping types. Deleting a category is
// blocked while any type still references it.
type Category struct {
	ID        int64     `json:"id"   gorm:"primaryKey;autoIncrement"`
	Name      string    `json:"name" gorm:"type:varchar(255);not null;index"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Category.
func (Category) TableName() string { return "categories" }

// Tag is a free-form label attached to miniatures. Tags are created lazily
// the first time a user attaches an unknown name (matched case-insensitively).
// Clients may reference a not-yet-persisted tag with a negative id; the write
// service reconciles those to real rows before linking.
type Tag struct {
	ID        int64     `json:"id"   gorm:"primaryKey;autoIncrement"`
	Name      string    `json:"name" gorm:"type:varchar(255);not null;index"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for Tag.
func (Tag) TableName() string { return "tags" }

// MiniatureTag is the join row behind the Miniature.Tags association. It is
// modelled explicitly so the write service can replace the association set
// wholesale (delete all, reinsert) without going through GORM's association
// mode.
type MiniatureTag struct {
	MiniatureID int64 `gorm:"primaryKey;autoIncrement:false"`
	TagID       int64 `gorm:"primaryKey;autoIncrement:false"`
}

// TableName returns the database table name for MiniatureTag.
func (MiniatureTag) TableName() string { return "miniature_tags" }

// TypeCategory is the join row behind MiniatureType.Categories, modelled
// explicitly so the taxonomy service can replace a type's category set
// wholesale.
type TypeCategory struct {
	MiniatureTypeID int64 `gorm:"primaryKey;autoIncrement:false"`
	CategoryID      int64 `gorm:"primaryKey;autoIncrement:false"`
}

// TableName returns the database table name for TypeCategory.
func (TypeCategory) TableName() string { return "type_categories" }

// PaintedBy is a lookup of painters ("unpainted", "self", a commission
// painter, …).
type PaintedBy struct {
	ID   int64  `json:"id"   gorm:"primaryKey;autoIncrement"`
	Name string `json:"name" gorm:"type:varchar(255);not null"`
}

// TableName returns the database table name for PaintedBy.
func (PaintedBy) TableName() string { return "painted_by" }

// BaseSize is a lookup of base sizes ("25mm round", "50mm square", …).
type BaseSize struct {
	ID   int64  `json:"id"   gorm:"primaryKey;autoIncrement"`
	Name string `json:"name" gorm:"type:varchar(255);not null"`
}

// TableName returns the database table name for BaseSize.
func (BaseSize) TableName() string { return "base_sizes" }

// Company is the root of the product taxonomy.
type Company struct {
	ID   int64  `json:"id"   gorm:"primaryKey;autoIncrement"`
	Name string `json:"name" gorm:"type:varchar(255);not null"`
}

// TableName returns the database table name for Company.
func (Company) TableName() string { return "companies" }

// ProductLine is the middle level of the product taxonomy and belongs to a
// company.
type ProductLine struct {
	ID        int64  `json:"id"         gorm:"primaryKey;autoIncrement"`
	Name      string `json:"name"       gorm:"type:varchar(255);not null"`
	CompanyID int64  `json:"company_id" gorm:"not null;index"`

	Company *Company `json:"company,omitempty" gorm:"foreignKey:CompanyID"`
}

// TableName returns the database table name for ProductLine.
func (ProductLine) TableName() string { return "product_lines" }

// ProductSet is the leaf of the product taxonomy and belongs to a product
// line. Miniatures optionally reference one set.
type ProductSet struct {
	ID            int64  `json:"id"              gorm:"primaryKey;autoIncrement"`
	Name          string `json:"name"            gorm:"type:varchar(255);not null"`
	ProductLineID int64  `json:"product_line_id" gorm:"not null;index"`

	ProductLine *ProductLine `json:"product_line,omitempty" gorm:"foreignKey:ProductLineID"`
}

// TableName returns the database table name for ProductSet.
func (ProductSet) TableName() string { return "product_sets" }

// AuditLog is an immutable record of a change made to a miniature.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - UserID: who performed the change; empty when no identity was available.
//   - MiniatureID: the affected miniature (indexed for the history view).
//   - Action: one of the audit.Action* constants (create/update/delete and
//     the image operations).
//   - Changes: JSON map of field name → {from, to}; null for actions that
//     record a full snapshot instead of a diff.
//   - Metadata: free-form JSON snapshot (e.g. the created row, or the image
//     path for image operations).
//   - CreatedAt: insertion timestamp. Rows are never updated or deleted.
type AuditLog struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	UserID      string    `json:"user_id"      gorm:"type:varchar(64);index"`
	MiniatureID int64     `json:"miniature_id" gorm:"not null;index:idx_audit_miniature"`
	Action      string    `json:"action"       gorm:"type:varchar(32);not null"`
	Changes     *string   `json:"changes,omitempty"  gorm:"type:text"`
	Metadata    *string   `json:"metadata,omitempty" gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at"   gorm:"index:idx_audit_miniature"`
}

// TableName returns the database table name for AuditLog.
func (AuditLog) TableName() string { return "audit_logs" }
