package render

// Theme holds colors for table graph rendering.
type Theme struct {
	Background string
	NodeBorder string
	TextColor  string

	// Node fills by kind.
	TableFill    string
	StructFill   string
	CallbackFill string
	CalleeText   string // direct callees, drawn as plain text

	// Edge colors by kind.
	EdgeStruct   string // table -> columns struct
	EdgeCallback string // table -> kqftap callback
	EdgeCall     string // callback -> direct callee
}

// NASA is the NASA/Bauhaus theme: geometric, monochrome, sparse color.
var NASA = Theme{
	Background: "#F5F5F5",
	NodeBorder: "#1A1A1A",
	TextColor:  "#1A1A1A",

	TableFill:    "white",
	StructFill:   "#ECEFF1", // blue-gray 50
	CallbackFill: "#E3F2FD", // blue 50
	CalleeText:   "#757575",

	EdgeStruct:   "#00695C", // teal
	EdgeCallback: "#0B3D91", // NASA blue
	EdgeCall:     "#424242", // dark gray
}
