package shaders

import (
	_ "embed"
)

//go:embed emit.wgsl
var EmitWGSL string

//go:embed integrate.wgsl
var IntegrateWGSL string

//go:embed compact.wgsl
var CompactWGSL string

//go:embed billboard.wgsl
var BillboardWGSL string

//go:embed overlay.wgsl
var OverlayWGSL string
