package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/zeebo/xxh3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"fmadb/internal/db"
	"fmadb/internal/hierarchy"
	"fmadb/internal/logger"
	"fmadb/internal/schema"
)

const fma = schema.URIPrefix

func writeInput(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fma.csv")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func openStore(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.OpenDB(filepath.Join(t.TempDir(), "fma.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func tableExists(t *testing.T, d *db.DB, name string) bool {
	t.Helper()
	var n int
	err := d.Conn().QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	if err != nil {
		t.Fatal(err)
	}
	return n > 0
}

func heartInput(t *testing.T) string {
	return writeInput(t,
		"Class ID,Preferred Label,Synonyms,Parents,Definitions,JHU DTI-81,Talairach,AAL",
		fma+"54321,Organ,,,,,,",
		fma+"12345,Heart,Cardia|Cor,"+fma+"54321,Hollow muscular organ.,7|x|9,,",
	)
}

func TestRun_HeartExample(t *testing.T) {
	ctx := context.Background()
	d := openStore(t)

	sum, err := Run(ctx, d, Options{Input: heartInput(t)})
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if sum.SchemaVersion != "v2" {
		t.Errorf("detected version = %q, want v2", sum.SchemaVersion)
	}
	if sum.RowsRead != 2 || sum.ConceptsInserted != 2 || sum.RowsSkipped != 0 {
		t.Errorf("unexpected summary: %+v", sum)
	}

	c, err := d.GetConcept(ctx, "12345")
	if err != nil {
		t.Fatal(err)
	}
	if c.Label == nil || *c.Label != "Heart" {
		t.Errorf("label = %v, want Heart", c.Label)
	}
	if c.ParentID == nil || *c.ParentID != "54321" {
		t.Errorf("parent = %v, want 54321", c.ParentID)
	}

	syns, err := d.Synonyms(ctx, "12345")
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, s := range syns {
		got = append(got, s.Term+"/"+s.TermType)
	}
	want := []string{"Heart/preferred_label", "Cardia/synonym", "Cor/synonym"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("synonyms = %v, want %v", got, want)
	}
	if syns[0].Lang == nil || *syns[0].Lang != "en" {
		t.Errorf("preferred label should carry lang en, got %v", syns[0].Lang)
	}

	defs, err := d.CountRows(ctx, "definition")
	if err != nil || defs != 1 {
		t.Errorf("definition rows = %d (%v), want 1", defs, err)
	}
}

func TestRun_JunctionCodes(t *testing.T) {
	ctx := context.Background()
	d := openStore(t)

	sum, err := Run(ctx, d, Options{Input: heartInput(t)})
	if err != nil {
		t.Fatal(err)
	}
	codes, err := d.Codes(ctx, "jhu_dti_81", "12345")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(codes, []int64{7, 9}) {
		t.Errorf("codes = %v, want [7 9]", codes)
	}
	if sum.SegmentsSkipped != 1 {
		t.Errorf("segments skipped = %d, want 1", sum.SegmentsSkipped)
	}
}

func TestRun_SparseColumnsAbsent(t *testing.T) {
	ctx := context.Background()
	d := openStore(t)

	sum, err := Run(ctx, d, Options{Input: heartInput(t)})
	if err != nil {
		t.Fatal(err)
	}

	cols, err := d.ConceptColumns(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range cols {
		if c == "aal" {
			t.Error("empty AAL column should not be created")
		}
	}
	if tableExists(t, d, "concept_talairach") {
		t.Error("empty Talairach column should not get a junction table")
	}
	if !tableExists(t, d, "concept_jhu_dti_81") {
		t.Error("JHU DTI-81 carries data and should get a junction table")
	}
	if !reflect.DeepEqual(sum.DroppedColumns, []string{"talairach", "aal"}) {
		t.Errorf("dropped = %v", sum.DroppedColumns)
	}
}

func TestRun_Idempotent(t *testing.T) {
	ctx := context.Background()
	d := openStore(t)
	input := heartInput(t)

	if _, err := Run(ctx, d, Options{Input: input}); err != nil {
		t.Fatal(err)
	}
	before := map[string]int{}
	for _, tbl := range []string{"concept", "synonym", "definition", "concept_jhu_dti_81"} {
		before[tbl], _ = d.CountRows(ctx, tbl)
	}

	sum, err := Run(ctx, d, Options{Input: input})
	if err != nil {
		t.Fatalf("second import failed: %v", err)
	}
	if sum.ConceptsInserted != 0 || sum.ConceptsIgnored != 2 {
		t.Errorf("second run inserted=%d ignored=%d, want 0/2", sum.ConceptsInserted, sum.ConceptsIgnored)
	}
	for tbl, n := range before {
		after, _ := d.CountRows(ctx, tbl)
		if after != n {
			t.Errorf("%s: %d rows before re-run, %d after", tbl, n, after)
		}
	}
	if runs, _ := d.CountRows(ctx, "import_run"); runs != 2 {
		t.Errorf("import_run rows = %d, want 2", runs)
	}
}

func TestRun_RecordsRun(t *testing.T) {
	ctx := context.Background()
	d := openStore(t)

	sum, err := Run(ctx, d, Options{Input: heartInput(t)})
	if err != nil {
		t.Fatal(err)
	}
	run, err := d.LastRun(ctx)
	if err != nil || run == nil {
		t.Fatalf("last run: %v %v", run, err)
	}
	if run.RunID != sum.RunID || run.SchemaVersion != "v2" {
		t.Errorf("unexpected run: %+v", run)
	}
	if len(run.SourceDigest) != 16 || run.SourceDigest != sum.SourceDigest {
		t.Errorf("digest = %q, summary digest = %q", run.SourceDigest, sum.SourceDigest)
	}
}

func TestRun_SkipsMalformedRows(t *testing.T) {
	ctx := context.Background()
	d := openStore(t)
	input := writeInput(t,
		"Class ID,Preferred Label,Parents",
		fma+"1,Good,",
		fma+"2,Short",
		"http://example.org/3,Foreign,",
		fma+"4,Bare\"quote,",
		fma+"5,Also good,"+fma+"1",
	)

	core, logs := observer.New(zapcore.WarnLevel)
	log := &logger.Logger{SugaredLogger: zap.New(core).Sugar()}

	sum, err := Run(ctx, d, Options{Input: input, Logger: log})
	if err != nil {
		t.Fatal(err)
	}
	if sum.RowsRead != 5 || sum.RowsSkipped != 3 || sum.ConceptsInserted != 2 {
		t.Errorf("unexpected summary: %+v", sum)
	}
	warned := logs.FilterMessage("input not fully imported").All()
	if len(warned) != 1 || warned[0].ContextMap()["rows_skipped"] != int64(3) {
		t.Errorf("expected one skip warning with rows_skipped=3, got %+v", warned)
	}
}

func TestRun_TextKeysAutoDetect(t *testing.T) {
	ctx := context.Background()
	d := openStore(t)
	input := writeInput(t,
		"Class ID,Preferred Label,Parents,FMAID",
		"x,Body,,"+fma+"7",
		"y,Trunk,"+fma+"7,"+fma+"7181",
	)

	sum, err := Run(ctx, d, Options{Input: input})
	if err != nil {
		t.Fatal(err)
	}
	if sum.SchemaVersion != "v1" {
		t.Errorf("version = %q, want v1", sum.SchemaVersion)
	}
	kt, err := d.KeyType(ctx)
	if err != nil || kt != "TEXT" {
		t.Errorf("key type = %q (%v), want TEXT", kt, err)
	}
}

func TestRun_BareFMAIDs(t *testing.T) {
	ctx := context.Background()
	d := openStore(t)
	input := writeInput(t,
		"Preferred Label,Parents,FMAID",
		"Body,,7",
		"Trunk,7,"+fma+"7181",
		"Torso,"+fma+"7181,7182",
	)

	sum, err := Run(ctx, d, Options{Input: input, Version: schema.V1})
	if err != nil {
		t.Fatal(err)
	}
	if sum.ConceptsInserted != 3 || sum.RowsSkipped != 0 {
		t.Errorf("unexpected summary: %+v", sum)
	}
	for id, parent := range map[string]string{"7181": "7", "7182": "7181"} {
		c, err := d.GetConcept(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if c.ParentID == nil || *c.ParentID != parent {
			t.Errorf("concept %s parent = %v, want %s", id, c.ParentID, parent)
		}
	}
}

func TestRun_KeyTypeMismatch(t *testing.T) {
	ctx := context.Background()
	d := openStore(t)
	if _, err := Run(ctx, d, Options{Input: heartInput(t)}); err != nil {
		t.Fatal(err)
	}

	v1 := writeInput(t, "Preferred Label,Parents,FMAID", "Body,,"+fma+"7")
	_, err := Run(ctx, d, Options{Input: v1})
	if err == nil || !strings.Contains(err.Error(), "fresh store") {
		t.Errorf("expected key type mismatch, got %v", err)
	}
}

func TestRun_ExplicitVersionMismatch(t *testing.T) {
	d := openStore(t)
	_, err := Run(context.Background(), d, Options{Input: heartInput(t), Version: schema.V1})
	var he *schema.HeaderMismatchError
	if !errors.As(err, &he) {
		t.Fatalf("expected *HeaderMismatchError, got %v", err)
	}
}

func TestRun_Latin1(t *testing.T) {
	ctx := context.Background()
	d := openStore(t)
	input := writeInput(t,
		"Class ID,Preferred Label,Parents",
		fma+"1,C\xf4te,",
	)

	if _, err := Run(ctx, d, Options{Input: input, Encoding: schema.EncodingLatin1}); err != nil {
		t.Fatal(err)
	}
	c, err := d.GetConcept(ctx, "1")
	if err != nil {
		t.Fatal(err)
	}
	if c.Label == nil || *c.Label != "Côte" {
		t.Errorf("label = %v, want Côte", c.Label)
	}
}

func TestRun_InvalidUTF8RollsBack(t *testing.T) {
	ctx := context.Background()
	d := openStore(t)
	input := writeInput(t,
		"Class ID,Preferred Label,Parents",
		fma+"1,Fine,",
		fma+"2,C\xf4te,",
	)

	_, err := Run(ctx, d, Options{Input: input})
	var de *schema.DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DecodeError, got %v", err)
	}
	if de.Line != 3 {
		t.Errorf("decode error line = %d, want 3", de.Line)
	}
	if n, _ := d.CountRows(ctx, "concept"); n != 0 {
		t.Errorf("failed import left %d concepts", n)
	}

	// A failed import that widens an existing store leaves no schema behind.
	good := writeInput(t,
		"Class ID,Preferred Label,Parents",
		fma+"1,Fine,",
	)
	if _, err := Run(ctx, d, Options{Input: good}); err != nil {
		t.Fatal(err)
	}
	bad := writeInput(t,
		"Class ID,Preferred Label,Parents,AAL,Talairach",
		fma+"2,Lobe,"+fma+"1,Frontal_Sup_L,4",
		fma+"3,C\xf4te,"+fma+"1,,",
	)
	if _, err := Run(ctx, d, Options{Input: bad}); !errors.As(err, &de) {
		t.Fatalf("expected *DecodeError, got %v", err)
	}
	cols, err := d.ConceptColumns(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range cols {
		if c == "aal" {
			t.Error("aal column survived the rolled back import")
		}
	}
	if tableExists(t, d, "concept_talairach") {
		t.Error("concept_talairach survived the rolled back import")
	}
	if n, _ := d.CountRows(ctx, "concept"); n != 1 {
		t.Errorf("concepts = %d, want 1", n)
	}
}

func TestRun_SemicolonDelimiterAndBOM(t *testing.T) {
	ctx := context.Background()
	d := openStore(t)
	input := writeInput(t,
		"\uFEFFClass ID;Preferred Label;Parents",
		fma+"1;Body;",
	)

	sum, err := Run(ctx, d, Options{Input: input, Comma: ';'})
	if err != nil {
		t.Fatal(err)
	}
	if sum.ConceptsInserted != 1 {
		t.Errorf("inserted = %d, want 1", sum.ConceptsInserted)
	}
}

func TestRun_BOMBeforeQuotedHeader(t *testing.T) {
	ctx := context.Background()
	d := openStore(t)
	input := writeInput(t,
		"\uFEFF\"Class ID\",\"Preferred Label\",\"Parents\"",
		"\""+fma+"1\",\"Body\",",
		"\""+fma+"2\",\"Heart\",\""+fma+"1\"",
	)

	sum, err := Run(ctx, d, Options{Input: input})
	if err != nil {
		t.Fatal(err)
	}
	if sum.SchemaVersion != "v2" || sum.ConceptsInserted != 2 {
		t.Errorf("unexpected summary: %+v", sum)
	}

	raw, err := os.ReadFile(input)
	if err != nil {
		t.Fatal(err)
	}
	if want := fmt.Sprintf("%016x", xxh3.Hash(raw)); sum.SourceDigest != want {
		t.Errorf("digest = %s, want %s over the raw bytes", sum.SourceDigest, want)
	}
}

func TestRun_ThenClosure(t *testing.T) {
	ctx := context.Background()
	d := openStore(t)
	input := writeInput(t,
		"Class ID,Preferred Label,Parents",
		fma+"1,Root,",
		fma+"2,P3,"+fma+"1",
		fma+"3,P2,"+fma+"2",
		fma+"4,P1,"+fma+"3",
		fma+"5,X,"+fma+"4",
		fma+"6,Orphan,"+fma+"999",
	)
	if _, err := Run(ctx, d, Options{Input: input}); err != nil {
		t.Fatal(err)
	}

	n, err := hierarchy.RebuildClosure(ctx, d, hierarchy.DefaultClosureOptions())
	if err != nil {
		t.Fatal(err)
	}
	if n != 10 {
		t.Errorf("closure rows = %d, want 10", n)
	}

	ancs, err := d.Ancestors(ctx, "5")
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, a := range ancs {
		got = append(got, *a.Label)
	}
	if !reflect.DeepEqual(got, []string{"P1", "P2", "P3", "Root"}) {
		t.Errorf("ancestors of X = %v", got)
	}
	if level, ok, err := d.IsAncestor(ctx, "5", "1"); err != nil || !ok || level != 4 {
		t.Errorf("IsAncestor(5, 1) = %d %v %v, want 4 true", level, ok, err)
	}

	// The dangling parent fails a strict rebuild and leaves the table intact.
	opts := hierarchy.DefaultClosureOptions()
	opts.Strictness = hierarchy.Strict
	_, err = hierarchy.RebuildClosure(ctx, d, opts)
	var de *hierarchy.DanglingError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DanglingError, got %v", err)
	}
	if rows, _ := d.CountRows(ctx, "hierarchy_closure"); rows != 10 {
		t.Errorf("closure rows after failed rebuild = %d, want 10", rows)
	}
}
