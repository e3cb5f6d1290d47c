package schema

// Default returns the built-in equipment extraction schema used when no schema
// file is configured. Models nest specification groups, which hold key/value
// specs; everything else is flat.
func Default() *Schema {
	specGroupChildren := []FieldDefinition{
		{Name: "name", Label: "Group Name", Description: "Name of the specification group", Cardinality: Single, Color: "#e8daef"},
		{Name: "specs", Label: "Specifications", Description: "Individual key-value specifications", Cardinality: MultiValue, Color: "#e8daef"},
	}

	return &Schema{Fields: []FieldDefinition{
		{Name: "title", Label: "Title", Description: "Equipment main title", Cardinality: Single, Color: "#ff6b6b"},
		{Name: "short_description", Label: "Short Description", Description: "Brief equipment summary", Cardinality: Single, Color: "#4ecdc4"},
		{Name: "full_description", Label: "Full Description", Description: "Detailed equipment description", Cardinality: Single, Color: "#45b7d1"},
		{Name: "model_name", Label: "Model Name", Description: "Individual model names for extraction", Cardinality: MultiValue, Color: "#ffa07a"},
		{Name: "specification_group_names", Label: "Specification Group Names", Description: "Specification group headings (DIMENSIONS, ELECTRICAL, ...)", Cardinality: MultiValue, Color: "#98fb98"},
		{Name: "source_url", Label: "Source URL", Description: "Original product page URL", Cardinality: Single, Color: "#87ceeb"},
		{Name: "source_type", Label: "Source Type", Description: "New/Used/Refurbished indicator", Cardinality: Single, Color: "#98d8c8"},
		{
			Name:        "models",
			Label:       "Equipment Models",
			Description: "Product model variations with detailed specifications",
			Cardinality: Nested,
			Color:       "#bb8fce",
			Children: []FieldDefinition{
				{Name: "name", Label: "Model Name", Description: "Name of the model", Cardinality: Single, Color: "#d7bde2"},
				{Name: "model_number", Label: "Model Number", Description: "Identification number", Cardinality: Single, Color: "#d7bde2"},
				{Name: "spec_groups", Label: "Specification Groups", Description: "Technical specification groups", Cardinality: Nested, Color: "#c39bd3", Children: specGroupChildren},
			},
		},
		{
			Name:        "spec_groups",
			Label:       "Specification Groups",
			Description: "Technical specifications with nested specs",
			Cardinality: Nested,
			Color:       "#aed6f1",
			Children: []FieldDefinition{
				{Name: "name", Label: "Group Name", Description: "Name of the specification group", Cardinality: Single, Color: "#d5e8f7"},
				{Name: "specs", Label: "Specifications", Description: "Individual key-value specifications", Cardinality: MultiValue, Color: "#d5e8f7"},
			},
		},
		{Name: "features", Label: "Features", Description: "Equipment features list", Cardinality: MultiValue, Color: "#85c1e9"},
		{Name: "accessories", Label: "Accessories", Description: "Related accessories/parts", Cardinality: MultiValue, Color: "#f8c471"},
		{Name: "categorized_tags", Label: "Categorized Tags", Description: "Category and tag assignments", Cardinality: MultiValue, Color: "#82e0aa"},
		{Name: "gallery_images", Label: "Gallery Images", Description: "Product image gallery", Cardinality: MultiValue, Color: "#f1948a"},
	}}
}
