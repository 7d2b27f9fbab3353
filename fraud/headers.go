package fraud

import (
	"fmt"
	"net"
	"net/url"
	"os/user"
	"runtime"
	"sort"
	"strings"
	"time"
)

// Header names for the authority's fraud-prevention header set. Every
// request to the API carries all of them.
const (
	HeaderConnectionMethod = "Gov-Client-Connection-Method"
	HeaderDeviceID         = "Gov-Client-Device-ID"
	HeaderUserIDs          = "Gov-Client-User-IDs"
	HeaderTimezone         = "Gov-Client-Timezone"
	HeaderLocalIPs         = "Gov-Client-Local-IPs"
	HeaderMACAddresses     = "Gov-Client-MAC-Addresses"
	HeaderUserAgent        = "Gov-Client-User-Agent"
	HeaderVendorVersion    = "Gov-Vendor-Version"
)

const connectionMethod = "OTHER_DIRECT"

// referenceZoneName is the authority's reference zone for the timezone
// header. The host's own zone never appears in the header set.
const referenceZoneName = "Europe/London"

var referenceZone = func() *time.Location {
	loc, err := time.LoadLocation(referenceZoneName)
	if err != nil {
		return time.UTC
	}
	return loc
}()

// Last-resort values for hosts where interface enumeration yields nothing
// usable. The authority rejects empty header values outright.
const (
	fallbackLocalIP = "127.0.0.1"
	fallbackMAC     = "9e:50:4f:9c:26:e1"
	fallbackUser    = "unknown"
)

// Builder computes the fraud-prevention header set once and serves the same
// copy for the life of the instance. Host facts (addresses, timezone
// offset, OS user) are snapshotted at construction.
type Builder struct {
	headers map[string]string
}

// Config identifies the installation to the authority. VendorName and
// VendorVersion feed Gov-Vendor-Version; DeviceID must be a stable opaque
// identifier for this installation.
type Config struct {
	DeviceID      string
	VendorName    string
	VendorVersion string
	Now           func() time.Time
}

func NewBuilder(cfg Config) (*Builder, error) {
	cfg.DeviceID = strings.TrimSpace(cfg.DeviceID)
	cfg.VendorName = strings.TrimSpace(cfg.VendorName)
	cfg.VendorVersion = strings.TrimSpace(cfg.VendorVersion)

	if cfg.DeviceID == "" {
		return nil, fmt.Errorf("fraud: device id is required")
	}
	if cfg.VendorName == "" {
		cfg.VendorName = "go-mtd"
	}
	if cfg.VendorVersion == "" {
		cfg.VendorVersion = "dev"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	ips, macs := localAddresses()
	headers := map[string]string{
		HeaderConnectionMethod: connectionMethod,
		HeaderDeviceID:         url.QueryEscape(cfg.DeviceID),
		HeaderUserIDs:          "os=" + url.QueryEscape(osUserName()),
		HeaderTimezone:         timezoneOffset(cfg.Now()),
		HeaderLocalIPs:         joinEscaped(ips),
		HeaderMACAddresses:     joinEscaped(macs),
		HeaderUserAgent:        userAgent(),
		HeaderVendorVersion:    url.QueryEscape(cfg.VendorName) + "=" + url.QueryEscape(cfg.VendorVersion),
	}
	for name, value := range headers {
		if strings.TrimSpace(value) == "" {
			return nil, fmt.Errorf("fraud: header %s resolved empty", name)
		}
	}

	return &Builder{headers: headers}, nil
}

// Headers returns a copy of the computed set.
func (b *Builder) Headers() map[string]string {
	if b == nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(b.headers))
	for name, value := range b.headers {
		out[name] = value
	}
	return out
}

// localAddresses collects the non-loopback unicast IPs and the MAC
// addresses of interfaces that are up. Hosts with nothing enumerable get
// the fixed fallbacks.
func localAddresses() ([]string, []string) {
	ips := []string{}
	macs := []string{}

	interfaces, err := net.Interfaces()
	if err == nil {
		for _, iface := range interfaces {
			if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
				continue
			}
			if mac := iface.HardwareAddr.String(); mac != "" {
				macs = append(macs, mac)
			}
			addrs, addrErr := iface.Addrs()
			if addrErr != nil {
				continue
			}
			for _, addr := range addrs {
				ipNet, ok := addr.(*net.IPNet)
				if !ok || ipNet.IP.IsLoopback() {
					continue
				}
				ips = append(ips, ipNet.IP.String())
			}
		}
	}

	sort.Strings(ips)
	sort.Strings(macs)
	if len(ips) == 0 {
		ips = []string{fallbackLocalIP}
	}
	if len(macs) == 0 {
		macs = []string{fallbackMAC}
	}
	return ips, macs
}

func joinEscaped(values []string) string {
	escaped := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		escaped = append(escaped, url.QueryEscape(value))
	}
	return strings.Join(escaped, ",")
}

// timezoneOffset renders the reference zone's UTC offset at the given
// instant as UTC±HH:MM.
func timezoneOffset(now time.Time) string {
	_, offsetSeconds := now.In(referenceZone).Zone()
	sign := "+"
	if offsetSeconds < 0 {
		sign = "-"
		offsetSeconds = -offsetSeconds
	}
	hours := offsetSeconds / 3600
	minutes := (offsetSeconds % 3600) / 60
	return fmt.Sprintf("UTC%s%02d:%02d", sign, hours, minutes)
}

func osUserName() string {
	current, err := user.Current()
	if err != nil || strings.TrimSpace(current.Username) == "" {
		return fallbackUser
	}
	return strings.TrimSpace(current.Username)
}

func userAgent() string {
	return url.QueryEscape(runtime.GOOS) + "/" + url.QueryEscape(runtime.GOARCH) +
		" (" + url.QueryEscape(runtime.Version()) + ")"
}
