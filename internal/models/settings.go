package models

// SettingKind tags the variant stored under a settings key, replacing the
// untyped value blobs of earlier schema versions.
type SettingKind string

const (
	SettingWallpaper SettingKind = "wallpaper"  // reference to a sideband blob
	SettingDirectory SettingKind = "directory"  // a granted directory path
	SettingDevice    SettingKind = "device"     // device preferences
)

// WallpaperSetting points at a sideband blob used as the canvas background.
type WallpaperSetting struct {
	BlobID string `json:"blobId"`
}

// DirectorySetting remembers a directory the user granted access to.
type DirectorySetting struct {
	Path string `json:"path"`
}

// DeviceSetting holds per-device preferences.
type DeviceSetting struct {
	DeviceName   string `json:"deviceName"`
	Author       string `json:"author,omitempty"`
	StorageLimit int64  `json:"storageLimit,omitempty"`
}
