// Command report_gen merges `go test -json` output with the TestPurpose
// annotation blocks carried by the test sources and renders JSON and
// Markdown reports. Run it from the repository root:
//
//	go test -json ./... > /tmp/tests.json
//	go run scripts/testing/report_gen.go -input /tmp/tests.json \
//	    -out-json reports/tests.json -out-md reports/tests.md
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const modulePath = "github.com/keygate/keygate/"

// Annotation holds the doc-comment block parsed from a test function.
type Annotation struct {
	Purpose    string `json:"purpose,omitempty"`
	Scope      string `json:"scope,omitempty"`
	Security   string `json:"security,omitempty"`
	Expected   string `json:"expected,omitempty"`
	TestCaseID string `json:"test_case_id,omitempty"`
}

// Result is the merged outcome for one test.
type Result struct {
	Name       string     `json:"name"`
	Package    string     `json:"package"`
	Category   string     `json:"category"`
	Status     string     `json:"status"`
	Elapsed    float64    `json:"elapsed_seconds"`
	Failure    string     `json:"failure_output,omitempty"`
	Annotation Annotation `json:"annotation"`
}

// Report is the rendered summary.
type Report struct {
	GeneratedAt time.Time `json:"generated_at"`
	Total       int       `json:"total"`
	Passed      int       `json:"passed"`
	Failed      int       `json:"failed"`
	Skipped     int       `json:"skipped"`
	Results     []Result  `json:"results"`
}

// testEvent is one line of `go test -json` output.
type testEvent struct {
	Action  string  `json:"Action"`
	Package string  `json:"Package"`
	Test    string  `json:"Test"`
	Elapsed float64 `json:"Elapsed"`
	Output  string  `json:"Output"`
}

func main() {
	input := flag.String("input", "", "path to go test -json output")
	outJSON := flag.String("out-json", "", "path for the JSON report")
	outMD := flag.String("out-md", "", "path for the Markdown report")
	title := flag.String("title", "Test Report", "report title")
	category := flag.String("category", "", "only include this category")
	flag.Parse()

	if *input == "" || *outJSON == "" || *outMD == "" {
		fmt.Fprintln(os.Stderr, "usage: report_gen -input <json> -out-json <path> -out-md <path>")
		os.Exit(1)
	}

	annotations := scanAnnotations()
	results := mergeResults(*input, annotations)

	if *category != "" {
		kept := results[:0]
		for _, r := range results {
			if r.Category == *category {
				kept = append(kept, r)
			}
		}
		results = kept
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Package != results[j].Package {
			return results[i].Package < results[j].Package
		}
		return results[i].Name < results[j].Name
	})

	report := Report{GeneratedAt: time.Now(), Results: results}
	for _, r := range results {
		report.Total++
		switch r.Status {
		case "pass":
			report.Passed++
		case "fail":
			report.Failed++
		case "skip":
			report.Skipped++
		}
	}

	writeJSON(report, *outJSON)
	writeMarkdown(report, *outMD, *title)

	if report.Failed > 0 {
		fmt.Fprintf(os.Stderr, "%d tests failed\n", report.Failed)
		os.Exit(1)
	}
}

// scanAnnotations walks the tree and parses the annotation block above every
// Test function, keyed by "<package>.<test>" to match go test -json events.
func scanAnnotations() map[string]Annotation {
	out := make(map[string]Annotation)
	fset := token.NewFileSet()

	filepath.WalkDir(".", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, "_test.go") {
			return nil
		}
		if strings.Contains(path, "_examples/") || strings.Contains(path, "vendor/") {
			return nil
		}

		node, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
		if err != nil {
			return nil
		}

		pkg := packagePath(path)
		for _, decl := range node.Decls {
			fn, ok := decl.(*ast.FuncDecl)
			if !ok || !strings.HasPrefix(fn.Name.Name, "Test") || fn.Doc == nil {
				continue
			}
			out[pkg+"."+fn.Name.Name] = parseAnnotation(fn.Doc)
		}
		return nil
	})

	return out
}

func parseAnnotation(doc *ast.CommentGroup) Annotation {
	var a Annotation
	fields := map[string]*string{
		"TestPurpose:":  &a.Purpose,
		"Scope:":        &a.Scope,
		"Security:":     &a.Security,
		"Expected:":     &a.Expected,
		"Test Case ID:": &a.TestCaseID,
	}
	for _, line := range doc.List {
		text := strings.TrimSpace(strings.TrimPrefix(line.Text, "//"))
		for prefix, dst := range fields {
			if strings.HasPrefix(text, prefix) {
				*dst = strings.TrimSpace(strings.TrimPrefix(text, prefix))
			}
		}
	}
	return a
}

func packagePath(file string) string {
	dir := filepath.ToSlash(filepath.Dir(file))
	dir = strings.TrimPrefix(dir, "./")
	if dir == "." {
		return strings.TrimSuffix(modulePath, "/")
	}
	return modulePath + dir
}

func categoryOf(pkg string) string {
	rel := strings.TrimPrefix(pkg, modulePath)
	switch {
	case strings.HasPrefix(rel, "tests/e2e"):
		return "E2E"
	case strings.HasPrefix(rel, "tests/system"):
		return "System"
	case strings.Contains(rel, "transport/http"):
		return "API"
	case strings.Contains(rel, "oauth2"):
		return "OAuth2"
	case strings.Contains(rel, "oidc"):
		return "OIDC"
	case strings.Contains(rel, "identity"):
		return "Identity"
	case strings.Contains(rel, "events"):
		return "Events"
	case strings.Contains(rel, "store"):
		return "Storage"
	case strings.Contains(rel, "audit"):
		return "Audit"
	case strings.Contains(rel, "config"):
		return "Config"
	default:
		return "Other"
	}
}

func mergeResults(path string, annotations map[string]Annotation) []Result {
	states := make(map[string]*Result)
	for key, a := range annotations {
		dot := strings.LastIndex(key, ".")
		states[key] = &Result{
			Name:       key[dot+1:],
			Package:    key[:dot],
			Category:   categoryOf(key[:dot]),
			Status:     "not run",
			Annotation: a,
		}
	}

	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot open %s: %v\n", path, err)
		os.Exit(1)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		var ev testEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil || ev.Test == "" {
			continue
		}

		key := ev.Package + "." + ev.Test
		res, ok := states[key]
		if !ok {
			res = &Result{
				Name:     ev.Test,
				Package:  ev.Package,
				Category: categoryOf(ev.Package),
			}
			// Subtests inherit the parent's annotation.
			if base, _, found := strings.Cut(ev.Test, "/"); found {
				if parent, ok := states[ev.Package+"."+base]; ok {
					res.Annotation = parent.Annotation
				}
			}
			states[key] = res
		}

		switch ev.Action {
		case "pass", "fail":
			res.Status = ev.Action
			res.Elapsed = ev.Elapsed
		case "skip":
			res.Status = "skip"
		case "output":
			if res.Status == "fail" || res.Status == "" {
				res.Failure += ev.Output
			}
		}
	}

	out := make([]Result, 0, len(states))
	for _, r := range states {
		out = append(out, *r)
	}
	return out
}

func writeJSON(report Report, path string) {
	data, _ := json.MarshalIndent(report, "", "  ")
	os.MkdirAll(filepath.Dir(path), 0o755)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "cannot write %s: %v\n", path, err)
		os.Exit(1)
	}
}

func writeMarkdown(report Report, path, title string) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Keygate %s\n\n", title)
	fmt.Fprintf(&sb, "**Generated:** %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&sb, "| Total | Passed | Failed | Skipped |\n|---|---|---|---|\n| %d | %d | %d | %d |\n\n",
		report.Total, report.Passed, report.Failed, report.Skipped)

	byCategory := make(map[string][]Result)
	var categories []string
	for _, r := range report.Results {
		if _, seen := byCategory[r.Category]; !seen {
			categories = append(categories, r.Category)
		}
		byCategory[r.Category] = append(byCategory[r.Category], r)
	}
	sort.Strings(categories)

	for _, cat := range categories {
		fmt.Fprintf(&sb, "## %s\n\n", cat)
		sb.WriteString("| Test | Status | Case ID | Purpose |\n|---|---|---|---|\n")
		for _, r := range byCategory[cat] {
			fmt.Fprintf(&sb, "| %s | %s | %s | %s |\n",
				r.Name, r.Status, r.Annotation.TestCaseID, r.Annotation.Purpose)
		}
		sb.WriteString("\n")
	}

	os.MkdirAll(filepath.Dir(path), 0o755)
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "cannot write %s: %v\n", path, err)
		os.Exit(1)
	}
}
