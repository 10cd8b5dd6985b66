package main

import (
	"bytes"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fxamacker/cbor/v2"

	"github.com/thebagchi/asn1der-go/lib/config"
)

const (
	REALM_HEX  = "1b0b4558414d504c452e434f4d"
	TICKET_HEX = "3036a003020105a10d1b0b4558414d504c452e434f4da220" +
		"301ea003020101a11730151b066b72627467741b0b4558414d504c452e434f4d"
)

var schemaPath = filepath.Join("..", "..", "lib", "schema", "testing", "kerberos.yaml")

func runCommand(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv(config.ENV_CONFIG, "")
	t.Setenv("ASN1DER_DEBUG", "")

	var stdout, stderr bytes.Buffer
	c := &command{stdin: strings.NewReader(stdin), stdout: &stdout, stderr: &stderr}
	err := c.run(args)
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestEncodeStdin(t *testing.T) {
	stdout, _, err := runCommand(t, "EXAMPLE.COM\n",
		"encode", "--schema", schemaPath, "--type", "Realm", "--output", "hex")
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if stdout != REALM_HEX+"\n" {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestEncodeRawOutput(t *testing.T) {
	stdout, _, err := runCommand(t, "EXAMPLE.COM", "encode", "-s", schemaPath, "-t", "Realm")
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	expected, _ := hex.DecodeString(REALM_HEX)
	if stdout != string(expected) {
		t.Errorf("stdout = %x, expected raw %s", stdout, REALM_HEX)
	}
}

func TestEncodeFiles(t *testing.T) {
	ticket := map[string]any{
		"realm": "EXAMPLE.COM",
		"sname": map[string]any{
			"name-type":   1,
			"name-string": []string{"krbtgt", "EXAMPLE.COM"},
		},
	}
	data, err := cbor.Marshal(ticket)
	if err != nil {
		t.Fatalf("cbor.Marshal failed: %v", err)
	}

	test := func(path string, extra ...string) {
		t.Run(filepath.Ext(path), func(t *testing.T) {
			args := append([]string{"encode", "-s", schemaPath, "-t", "Ticket", "-o", "hex"}, extra...)
			stdout, _, err := runCommand(t, "", append(args, path)...)
			if err != nil {
				t.Fatalf("encode failed: %v", err)
			}
			if strings.TrimSpace(stdout) != TICKET_HEX {
				t.Errorf("stdout = %s", stdout)
			}
		})
	}
	test(writeFile(t, "ticket.cbor", data))
	test(writeFile(t, "ticket.jsonc", []byte(`{
  // ticket for the TGS
  "realm": "EXAMPLE.COM",
  "sname": {"name-type": 1, "name-string": ["krbtgt", "EXAMPLE.COM"]},
}`)))
	test(writeFile(t, "ticket.yaml", []byte(`
realm: EXAMPLE.COM
sname: {name-type: 1, name-string: [krbtgt, EXAMPLE.COM]}
`)))
	test(writeFile(t, "ticket.value", data), "--format", "cbor")
}

func TestEncodeConfigFile(t *testing.T) {
	absolute, err := filepath.Abs(schemaPath)
	if err != nil {
		t.Fatalf("Abs failed: %v", err)
	}
	path := writeFile(t, "asn1der.yaml", []byte(
		"schema: "+absolute+"\ntype: Realm\noutput: hex\nlog_level: error\n"))

	stdout, _, err := runCommand(t, "EXAMPLE.COM", "encode", "--config", path)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if stdout != REALM_HEX+"\n" {
		t.Errorf("stdout = %q", stdout)
	}

	stdout, _, err = runCommand(t, "[krbtgt]", "encode", "--config", path, "--type", "PrincipalName",
		"--format", "json")
	if err == nil || stdout != "" {
		t.Errorf("expected an encode error, got %q, %v", stdout, err)
	}
}

func TestEncodeErrors(t *testing.T) {
	test := func(description, stdin string, args ...string) {
		t.Run(description, func(t *testing.T) {
			stdout, _, err := runCommand(t, stdin, args...)
			if err == nil {
				t.Errorf("expected an error")
			}
			if stdout != "" {
				t.Errorf("stdout = %q after an error", stdout)
			}
		})
	}
	test("no command", "")
	test("unknown command", "", "decode")
	test("no schema", "x", "encode", "--type", "Realm")
	test("no type", "x", "encode", "--schema", schemaPath)
	test("unknown type", "x", "encode", "--schema", schemaPath, "--type", "Missing")
	test("bad output", "x", "encode", "--schema", schemaPath, "--type", "Realm", "--output", "base64")
	test("bad format", "x", "encode", "--schema", schemaPath, "--type", "Realm", "--format", "xml")
	test("bad value", "{a: [", "encode", "--schema", schemaPath, "--type", "Realm")
	test("missing field", "realm: EXAMPLE.COM", "encode", "--schema", schemaPath, "--type", "Ticket")
	test("extra argument", "", "encode", "--schema", schemaPath, "--type", "Realm", "a.yaml", "b.yaml")
	test("unknown flag", "", "encode", "--width", "4")
}

func TestTypes(t *testing.T) {
	stdout, _, err := runCommand(t, "", "types", "--schema", schemaPath)
	if err != nil {
		t.Fatalf("types failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(lines) == 0 || !strings.HasPrefix(lines[0], "Algorithm") {
		t.Errorf("stdout = %q", stdout)
	}
	if !strings.Contains(stdout, "Ticket") || !strings.Contains(stdout, "sequence") {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestDebugLogging(t *testing.T) {
	_, stderr, err := runCommand(t, "EXAMPLE.COM", "encode", "--schema", schemaPath, "--type", "Realm",
		"--log-level", "debug")
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	for _, want := range []string{"compiled type", "encoding value", "encoded value"} {
		if !strings.Contains(stderr, want) {
			t.Errorf("stderr missing %q: %s", want, stderr)
		}
	}
}

func TestVersion(t *testing.T) {
	stdout, _, err := runCommand(t, "", "version")
	if err != nil || stdout != "asn1der "+VERSION+"\n" {
		t.Errorf("version = %q, %v", stdout, err)
	}
}
