package types

// Standard table names for Store.GetTable.
const (
	TableCanvases = "canvases"
	TableCells    = "cells"
	TableEdits    = "edits"
)

// StandardTableNames lists all standard table names for enumeration.
var StandardTableNames = []string{
	TableCanvases,
	TableCells,
	TableEdits,
}
