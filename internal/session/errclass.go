package session

import "github.com/parleybot/parley/internal/channels"

// channelsErrorClass converts a stored error-class column back to its type;
// unrecognized values degrade to unknown rather than failing the scan
func channelsErrorClass(s string) channels.ErrorClass {
	switch channels.ErrorClass(s) {
	case channels.ErrClassPermission, channels.ErrClassRateLimit, channels.ErrClassNotFound, channels.ErrClassUnknown:
		return channels.ErrorClass(s)
	case "":
		return ""
	default:
		return channels.ErrClassUnknown
	}
}
