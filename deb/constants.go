package deb

// ControlField represents a standard field in a Debian control file.
type ControlField string

const (
	FieldPackage      ControlField = "Package"
	FieldVersion      ControlField = "Version"
	FieldArchitecture ControlField = "Architecture"
	FieldMaintainer   ControlField = "Maintainer"
	FieldDescription  ControlField = "Description"
	FieldSection      ControlField = "Section"
	FieldHomepage     ControlField = "Homepage"
	FieldDepends      ControlField = "Depends"
	FieldPreDepends   ControlField = "Pre-Depends"
	FieldRecommends   ControlField = "Recommends"
	FieldSuggests     ControlField = "Suggests"
	FieldSource       ControlField = "Source"

	// FieldLicense is not part of Debian policy but some third-party
	// packages ship it, and it is the only license hint a binary package carries.
	FieldLicense ControlField = "License"
)

// relationFields lists, in merge order, the fields whose relations end up in Control.Depends.
var relationFields = []ControlField{FieldDepends, FieldRecommends, FieldSuggests}

// ControlFile represents a standard file found in the control archive.
type ControlFile string

const (
	FileControl ControlFile = "control"
)

// PackageFile represents a standard member of the .deb archive (ar format).
type PackageFile string

const (
	PkgDebianBinary PackageFile = "debian-binary"
	PkgControlTar   PackageFile = "control.tar"
	PkgDataTar      PackageFile = "data.tar"
)

// Cache sub-directories holding the two extracted archives.
const (
	ControlDir = "control"
	DataDir    = "data"
)
