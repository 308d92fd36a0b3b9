package architecture_test

import (
	"bufio"
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// goFile is one source file under internal/ with its import paths.
type goFile struct {
	rel     string
	imports []string
}

type violation struct {
	file string
	imp  string
	rule string
}

func TestImportBoundaries(t *testing.T) {
	modulePath, files := scanInternal(t)

	var violations []violation
	for _, f := range files {
		disallowed := disallowedImports(modulePath, layerFor(f.rel))
		if len(disallowed) == 0 {
			continue
		}
		for _, imp := range f.imports {
			for _, bad := range disallowed {
				if imp == bad || strings.HasPrefix(imp, bad+"/") {
					violations = append(violations, violation{file: f.rel, imp: imp, rule: bad})
					break
				}
			}
		}
	}
	report(t, "import boundary violations:", violations)
}

// Storage and cloud SDKs stay behind adapters in platform/ and clients/;
// app/ may touch them only to construct those adapters.
func TestVendorSDKsStayInAdapters(t *testing.T) {
	_, files := scanInternal(t)

	var violations []violation
	for _, f := range files {
		if adapterPath(f.rel) {
			continue
		}
		for _, imp := range f.imports {
			for _, sdk := range vendorSDKs {
				if strings.HasPrefix(imp, sdk) {
					violations = append(violations, violation{file: f.rel, imp: imp, rule: sdk})
					break
				}
			}
		}
	}
	report(t, "vendor SDK imports outside adapter packages (wrap them in internal/platform):", violations)
}

var vendorSDKs = []string{
	"cloud.google.com/go/",
	"github.com/aws/aws-sdk-go-v2",
	"github.com/redis/go-redis/",
	"github.com/pgvector/pgvector-go",
	"github.com/jackc/pgx/",
}

func adapterPath(rel string) bool {
	for _, p := range []string{"internal/platform/", "internal/clients/", "internal/app/"} {
		if strings.HasPrefix(rel, p) {
			return true
		}
	}
	return false
}

func layerFor(rel string) string {
	for _, layer := range []string{"domain", "pkg", "platform", "indexing", "data", "jobs", "services", "http"} {
		if strings.HasPrefix(rel, "internal/"+layer+"/") {
			return layer
		}
	}
	return ""
}

func disallowedImports(modulePath string, layer string) []string {
	in := func(names ...string) []string {
		out := make([]string, 0, len(names))
		for _, n := range names {
			out = append(out, modulePath+"/internal/"+n)
		}
		return out
	}
	switch layer {
	case "domain":
		return in("pkg", "platform", "clients", "bridges", "indexing", "data", "jobs", "temporalx", "services", "http", "app")
	case "pkg":
		return in("domain", "platform", "clients", "bridges", "indexing", "data", "jobs", "temporalx", "services", "http", "app")
	case "platform":
		return in("data", "jobs", "temporalx", "services", "http", "app")
	case "indexing":
		return in("jobs", "temporalx", "services", "http", "app")
	case "data":
		return in("clients", "jobs", "temporalx", "services", "http", "app")
	case "jobs":
		return in("services", "http", "app")
	case "services":
		return in("indexing", "jobs", "http", "app")
	case "http":
		return in("indexing", "jobs", "temporalx", "app")
	default:
		return nil
	}
}

func report(t *testing.T, header string, violations []violation) {
	t.Helper()
	if len(violations) == 0 {
		return
	}
	var b strings.Builder
	b.WriteString(header + "\n")
	for _, v := range violations {
		fmt.Fprintf(&b, "- %s imports %q (rule: %q)\n", v.file, v.imp, v.rule)
	}
	t.Fatal(b.String())
}

// scanInternal parses the import block of every .go file under internal/.
func scanInternal(t *testing.T) (string, []goFile) {
	t.Helper()

	start, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	root, err := findModuleRoot(start)
	if err != nil {
		t.Fatalf("find module root: %v", err)
	}
	modulePath, err := readModulePath(filepath.Join(root, "go.mod"))
	if err != nil {
		t.Fatalf("read module path: %v", err)
	}

	fset := token.NewFileSet()
	var files []goFile
	walkErr := filepath.WalkDir(filepath.Join(root, "internal"), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if name := d.Name(); name == "vendor" || name == "testdata" || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			return err
		}
		gf := goFile{rel: filepath.ToSlash(rel)}
		for _, spec := range f.Imports {
			if imp, err := strconv.Unquote(spec.Path.Value); err == nil {
				gf.imports = append(gf.imports, imp)
			}
		}
		files = append(files, gf)
		return nil
	})
	if walkErr != nil {
		t.Fatalf("walk internal/: %v", walkErr)
	}
	if len(files) == 0 {
		t.Fatalf("no go files found under %s/internal", root)
	}
	return modulePath, files
}

func findModuleRoot(start string) (string, error) {
	for dir := start; ; {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found from %s", start)
		}
		dir = parent
	}
}

func readModulePath(goModPath string) (string, error) {
	f, err := os.Open(goModPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if mp, ok := strings.CutPrefix(line, "module "); ok {
			if mp = strings.TrimSpace(mp); mp == "" {
				return "", fmt.Errorf("empty module path in %s", goModPath)
			}
			return mp, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("module path not found in %s", goModPath)
}
