package model

// Config holds the per-type behavior switches.
type Config struct {
	// UniqueBy lists the attributes that make a record logically unique.
	// Used by Exists, CreateOrUpdate, and the save-time collision check.
	// All listed fields must match for two records to be considered the
	// same logical entity.
	UniqueBy []string

	// PaginateAt is the page size for Page. Zero disables pagination.
	PaginateAt int

	// MergeIfExist makes save adopt the identity of an existing record that
	// collides on UniqueBy instead of failing with a UniquenessError.
	MergeIfExist bool

	// CreateDataset lets adapters create the backing dataset when missing.
	CreateDataset bool

	// CreateMissingFields lets associations add a missing foreign-key
	// attribute to the owner type instead of failing.
	CreateMissingFields bool

	// TitleField is the attribute used to label records in form descriptors.
	TitleField string
}

// DefaultConfig returns the config applied to newly declared types.
func DefaultConfig() Config {
	return Config{
		UniqueBy:            []string{"id"},
		CreateDataset:       true,
		CreateMissingFields: true,
		TitleField:          "name",
	}
}
