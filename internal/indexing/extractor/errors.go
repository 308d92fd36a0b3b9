package extractor

import "fmt"

// UnsupportedDatasourceError reports a (source, type) pair no extractor
// handles.
type UnsupportedDatasourceError struct {
	Source string
	Type   string
	Reason string
}

func (e *UnsupportedDatasourceError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return fmt.Sprintf("datasource %s/%s is not supported", e.Source, e.Type)
}

// IllegalConfigurationError reports a document the configured profile cannot
// process, such as a file extension with no extractor.
type IllegalConfigurationError struct {
	Reason string
}

func (e *IllegalConfigurationError) Error() string { return e.Reason }
