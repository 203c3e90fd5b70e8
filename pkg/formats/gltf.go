package formats

// glTF 2.0 enumerations used by the tile encoder.
const (
	ComponentUnsignedByte  = 5121
	ComponentUnsignedShort = 5123
	ComponentUnsignedInt   = 5125
	ComponentFloat         = 5126

	TargetArrayBuffer        = 34962
	TargetElementArrayBuffer = 34963

	FilterNearest             = 9728
	FilterLinear              = 9729
	FilterNearestMipmapLinear = 9986
	FilterLinearMipmapLinear  = 9987
	WrapRepeat                = 10497

	ModeTriangles = 4
)

// Extension names.
const (
	ExtMaterialsUnlit = "KHR_materials_unlit"
	ExtTextureWebP    = "EXT_texture_webp"
)

// Document is the JSON chunk of a glTF asset.
type Document struct {
	Asset              Asset        `json:"asset"`
	Scene              int          `json:"scene"`
	Scenes             []Scene      `json:"scenes"`
	Nodes              []Node       `json:"nodes"`
	Meshes             []Mesh       `json:"meshes"`
	Accessors          []Accessor   `json:"accessors"`
	BufferViews        []BufferView `json:"bufferViews"`
	Buffers            []Buffer     `json:"buffers"`
	Materials          []Material   `json:"materials,omitempty"`
	Textures           []Texture    `json:"textures,omitempty"`
	Images             []Image      `json:"images,omitempty"`
	Samplers           []Sampler    `json:"samplers,omitempty"`
	ExtensionsUsed     []string     `json:"extensionsUsed,omitempty"`
	ExtensionsRequired []string     `json:"extensionsRequired,omitempty"`
}

type Asset struct {
	Version   string `json:"version"`
	Generator string `json:"generator,omitempty"`
}

type Scene struct {
	Nodes []int `json:"nodes"`
}

type Node struct {
	Mesh   *int      `json:"mesh,omitempty"`
	Matrix []float64 `json:"matrix,omitempty"`
}

type Mesh struct {
	Name       string      `json:"name,omitempty"`
	Primitives []Primitive `json:"primitives"`
}

type Primitive struct {
	Attributes map[string]int `json:"attributes"`
	Indices    *int           `json:"indices,omitempty"`
	Material   *int           `json:"material,omitempty"`
	Mode       int            `json:"mode"`
}

type Accessor struct {
	BufferView    int       `json:"bufferView"`
	ByteOffset    int       `json:"byteOffset,omitempty"`
	ComponentType int       `json:"componentType"`
	Count         int       `json:"count"`
	Type          string    `json:"type"`
	Min           []float64 `json:"min,omitempty"`
	Max           []float64 `json:"max,omitempty"`
}

type BufferView struct {
	Buffer     int `json:"buffer"`
	ByteOffset int `json:"byteOffset"`
	ByteLength int `json:"byteLength"`
	ByteStride int `json:"byteStride,omitempty"`
	Target     int `json:"target,omitempty"`
}

type Buffer struct {
	ByteLength int `json:"byteLength"`
}

type Material struct {
	Name                 string                 `json:"name,omitempty"`
	PBRMetallicRoughness PBRMetallicRoughness   `json:"pbrMetallicRoughness"`
	DoubleSided          bool                   `json:"doubleSided,omitempty"`
	Extensions           map[string]interface{} `json:"extensions,omitempty"`
}

type PBRMetallicRoughness struct {
	BaseColorFactor  []float32   `json:"baseColorFactor,omitempty"`
	BaseColorTexture *TextureRef `json:"baseColorTexture,omitempty"`
	MetallicFactor   float32     `json:"metallicFactor"`
	RoughnessFactor  float32     `json:"roughnessFactor"`
}

type TextureRef struct {
	Index    int `json:"index"`
	TexCoord int `json:"texCoord,omitempty"`
}

type Texture struct {
	Sampler    *int                   `json:"sampler,omitempty"`
	Source     *int                   `json:"source,omitempty"`
	Extensions map[string]interface{} `json:"extensions,omitempty"`
}

type Image struct {
	BufferView int    `json:"bufferView"`
	MimeType   string `json:"mimeType"`
}

type Sampler struct {
	MagFilter int `json:"magFilter,omitempty"`
	MinFilter int `json:"minFilter,omitempty"`
	WrapS     int `json:"wrapS,omitempty"`
	WrapT     int `json:"wrapT,omitempty"`
}

// ComponentSize returns the byte size of a glTF component type.
func ComponentSize(componentType int) int {
	switch componentType {
	case ComponentUnsignedByte:
		return 1
	case ComponentUnsignedShort:
		return 2
	default:
		return 4
	}
}

// IndexComponentType returns the narrowest index type able to address
// maxIndex. The largest value of each type is the primitive restart marker
// and is never used as an index.
func IndexComponentType(maxIndex int) int {
	switch {
	case maxIndex < 0xff:
		return ComponentUnsignedByte
	case maxIndex < 0xffff:
		return ComponentUnsignedShort
	default:
		return ComponentUnsignedInt
	}
}
