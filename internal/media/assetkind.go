package media

// AssetKind is a closed category of downloadable media associated with a
// game record. Each kind maps to a fixed subfolder under the system media
// root and a filename suffix, and declares whether downloaded images of
// that kind may be rescaled.
type AssetKind int

const (
	KindCover AssetKind = iota
	KindThumbnail
	KindMarquee
	KindFanArt
	KindScreenshot
	KindBoxBack
	KindVideo
	KindManual
	KindMap
	KindCartridge
	KindBezel
	KindMagazine
)

// Kinds lists every asset kind in canonical order. Resolvers enumerate
// assets in exactly this order.
var Kinds = []AssetKind{
	KindCover,
	KindThumbnail,
	KindMarquee,
	KindFanArt,
	KindScreenshot,
	KindBoxBack,
	KindVideo,
	KindManual,
	KindMap,
	KindCartridge,
	KindBezel,
	KindMagazine,
}

type kindInfo struct {
	name       string
	subfolder  string
	suffix     string
	defaultExt string
	resizable  bool
}

var kindTable = map[AssetKind]kindInfo{
	KindCover:      {"cover", "covers", "cover", ".jpg", true},
	KindThumbnail:  {"thumbnail", "thumbnails", "thumb", ".jpg", true},
	KindMarquee:    {"marquee", "marquees", "marquee", ".png", true},
	KindFanArt:     {"fanart", "fanart", "fanart", ".jpg", false},
	KindScreenshot: {"screenshot", "screenshots", "image", ".png", true},
	KindBoxBack:    {"boxback", "boxbacks", "boxback", ".jpg", false},
	KindVideo:      {"video", "videos", "video", ".mp4", false},
	KindManual:     {"manual", "manuals", "manual", ".pdf", false},
	KindMap:        {"map", "maps", "map", ".png", false},
	KindCartridge:  {"cartridge", "cartridges", "cartridge", ".png", true},
	KindBezel:      {"bezel", "bezels", "bezel", ".png", false},
	KindMagazine:   {"magazine", "magazines", "magazine", ".pdf", false},
}

func (k AssetKind) String() string {
	if info, ok := kindTable[k]; ok {
		return info.name
	}

	return "unknown"
}

// Subfolder is the directory under the system media root for this kind.
func (k AssetKind) Subfolder() string {
	return kindTable[k].subfolder
}

// Suffix is appended to the sanitized game identifier in file names.
func (k AssetKind) Suffix() string {
	return kindTable[k].suffix
}

// DefaultExt is used when neither the URL nor the response content type
// yields a usable extension.
func (k AssetKind) DefaultExt() string {
	return kindTable[k].defaultExt
}

// Resizable reports whether downloads of this kind go through image
// rescaling. Videos, documents and art meant to be shown full-size are
// stored as delivered.
func (k AssetKind) Resizable() bool {
	return kindTable[k].resizable
}
