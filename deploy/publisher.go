package deploy

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	provisioner "github.com/getpup/tenant-provisioner"
)

// DefaultSqlPackagePath is the sqlpackage executable looked up on PATH.
const DefaultSqlPackagePath = "sqlpackage"

// maxOutputInError bounds how much tool output is quoted in an error.
const maxOutputInError = 2048

// PackagePublisher applies a validated package to a database.
type PackagePublisher interface {
	Publish(ctx context.Context, pkg Package, targetConnection string) error
}

// SqlPackage publishes packages with the sqlpackage command line tool.
// Possible data loss does not block a publish and an existing database is
// updated in place.
type SqlPackage struct {
	// Path is the sqlpackage executable (default: sqlpackage on PATH).
	Path string

	// Properties are extra /p: publish properties. They override the
	// defaults on key collisions.
	Properties map[string]string

	// Logger is an optional logger for tool output.
	Logger provisioner.Logger

	// command builds the process; tests replace it.
	command func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// Compile-time check that SqlPackage implements PackagePublisher.
var _ PackagePublisher = (*SqlPackage)(nil)

// Publish runs sqlpackage /Action:Publish for pkg against targetConnection.
func (s *SqlPackage) Publish(ctx context.Context, pkg Package, targetConnection string) error {
	path := s.Path
	if path == "" {
		path = DefaultSqlPackagePath
	}
	command := s.command
	if command == nil {
		command = exec.CommandContext
	}

	var out bytes.Buffer
	cmd := command(ctx, path, publishArgs(pkg.Path, targetConnection, s.Properties)...)
	cmd.Stdout = &out
	cmd.Stderr = &out

	if s.Logger != nil {
		s.Logger.Info(ctx, "publishing package", "package", pkg.Name, "version", pkg.Version)
	}

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("sqlpackage publish of %s failed: %w: %s", pkg.Name, err, tail(out.String(), maxOutputInError))
	}

	if s.Logger != nil {
		s.Logger.Debug(ctx, "sqlpackage output", "package", pkg.Name, "output", out.String())
	}
	return nil
}

func publishArgs(sourceFile, targetConnection string, extra map[string]string) []string {
	props := map[string]string{
		"BlockOnPossibleDataLoss": "False",
		"CreateNewDatabase":       "False",
	}
	for k, v := range extra {
		props[k] = v
	}

	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := []string{
		"/Action:Publish",
		"/SourceFile:" + sourceFile,
		"/TargetConnectionString:" + targetConnection,
	}
	for _, k := range keys {
		args = append(args, "/p:"+k+"="+props[k])
	}
	return args
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
