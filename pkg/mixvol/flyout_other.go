//go:build !windows

package mixvol

// ShowAudioFlyout is a no-op outside Windows, desktop environments show their own OSD
func ShowAudioFlyout() error {
	return nil
}
