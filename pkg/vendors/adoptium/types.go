package adoptium

type availableReleases struct {
	AvailableReleases []int `json:"available_releases"`
}

type release struct {
	ReleaseName string      `json:"release_name"`
	ReleaseType string      `json:"release_type"`
	Binaries    []binary    `json:"binaries"`
	VersionData versionData `json:"version_data"`
}

type versionData struct {
	Semver         string `json:"semver"`
	OpenJDKVersion string `json:"openjdk_version"`
}

type binary struct {
	Architecture string `json:"architecture"`
	HeapSize     string `json:"heap_size"`
	ImageType    string `json:"image_type"`
	JVMImpl      string `json:"jvm_impl"`
	OS           string `json:"os"`
	Package      *asset `json:"package"`
	Installer    *asset `json:"installer"`
}

type asset struct {
	Checksum     string `json:"checksum"`
	ChecksumLink string `json:"checksum_link"`
	Link         string `json:"link"`
	Name         string `json:"name"`
	Size         int64  `json:"size"`
}
