package asn1der_go

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/thebagchi/asn1der-go/lib/schema"
)

// ParseSchema reads and compiles the schema document in filename. A nil
// logger disables compile logging.
func ParseSchema(filename string, logger *slog.Logger) (*schema.Schema, error) {
	data, err := os.ReadFile(filename)
	if nil != err {
		return nil, err
	}
	doc, err := schema.Parse(data)
	if nil != err {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	s, err := doc.Compile(logger)
	if nil != err {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return s, nil
}
