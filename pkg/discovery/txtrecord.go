package discovery

import (
	"fmt"
	"sort"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeServerTXT creates the TXT records a server announces.
func EncodeServerTXT(s *Server) TXTRecordMap {
	txt := make(TXTRecordMap)
	if s.Path != "" && s.Path != "/" {
		txt[TXTKeyPath] = s.Path
	}
	if s.TLS {
		txt[TXTKeyTLS] = "1"
	}
	if s.Version != "" {
		txt[TXTKeyVersion] = s.Version
	}
	if s.Name != "" {
		txt[TXTKeyName] = s.Name
	}
	return txt
}

// DecodeServerTXT fills the TXT-derived fields of s.
func DecodeServerTXT(txt TXTRecordMap, s *Server) error {
	s.Path = "/"
	if p, ok := txt[TXTKeyPath]; ok && p != "" {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("%w: %s must start with '/'", ErrInvalidTXTRecord, TXTKeyPath)
		}
		s.Path = p
	}
	switch v := txt[TXTKeyTLS]; v {
	case "", "0", "false":
		s.TLS = false
	case "1", "true":
		s.TLS = true
	default:
		return fmt.Errorf("%w: %s=%q", ErrInvalidTXTRecord, TXTKeyTLS, v)
	}
	s.Version = txt[TXTKeyVersion]
	s.Name = txt[TXTKeyName]
	return nil
}

// TXTRecordsToStrings converts a TXTRecordMap to sorted "key=value" strings.
// This format is commonly used by mDNS libraries.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(result)
	return result
}

// StringsToTXTRecords parses a slice of "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		parts := strings.SplitN(s, "=", 2)
		if len(parts) == 2 {
			txt[parts[0]] = parts[1]
		} else if len(parts) == 1 && parts[0] != "" {
			// Key without value (boolean flag)
			txt[parts[0]] = ""
		}
	}
	return txt
}
