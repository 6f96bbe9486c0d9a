package extractor

import (
	"strings"
	"testing"
	"time"

	"github.com/use-agent/sitegrade/models"
)

const samplePage = `<!DOCTYPE html>
<html>
<head>
  <title>  Example Store  </title>
  <meta name="Description" content="Hand made goods.">
  <script type="application/ld+json">{"@context":"https://schema.org","@type":"FAQPage"}</script>
  <script type="application/ld+json">{not json</script>
  <script type="application/ld+json">[{"@type":"Organization"}]</script>
  <style>body { color: red; }</style>
</head>
<body>
  <h1> Welcome </h1>
  <h2>About</h2>
  <h2>About</h2>
  <h3>Details</h3>
  <p>First paragraph with <b>bold</b> text.</p>
  <p>Second paragraph.</p>
  <script>var hidden = "do not show";</script>
  <ul><li>one</li><li>two</li></ul>
  <ol><li>three</li></ol>
  <img src="/a.png" alt="A">
  <img src="/b.png" alt="">
  <img src="/c.png">
  <a href="/about">About</a>
  <a href="/about">About again</a>
  <a href="https://EXAMPLE.com/contact">Contact</a>
  <a href="https://other.org/">Other</a>
  <a href="mailto:me@example.com">Mail</a>
  <a href="javascript:void(0)">JS</a>
</body>
</html>`

func extractSample(t *testing.T) *models.PageSnapshot {
	t.Helper()
	return Extract(&models.RenderedPage{
		URL:        "https://example.com/",
		FinalURL:   "https://example.com/",
		StatusCode: 200,
		HTML:       samplePage,
		LoadTime:   1500 * time.Millisecond,
		PageSize:   2048,
	})
}

func TestExtract_TitleAndMeta(t *testing.T) {
	snap := extractSample(t)

	if snap.Title != "Example Store" {
		t.Errorf("Title = %q, want %q", snap.Title, "Example Store")
	}
	if snap.MetaDescription != "Hand made goods." {
		t.Errorf("MetaDescription = %q", snap.MetaDescription)
	}
	if snap.FinalStatusCode != 200 {
		t.Errorf("FinalStatusCode = %d, want 200", snap.FinalStatusCode)
	}
	if snap.Performance.LoadTimeMs != 1500 || snap.Performance.PageSizeBytes != 2048 {
		t.Errorf("Performance = %+v", snap.Performance)
	}
}

func TestExtract_Headings(t *testing.T) {
	snap := extractSample(t)

	if len(snap.Headings.H1) != 1 || snap.Headings.H1[0] != "Welcome" {
		t.Errorf("H1 = %q, want [Welcome]", snap.Headings.H1)
	}
	if len(snap.Headings.H2) != 2 {
		t.Errorf("H2 = %q, want duplicates kept", snap.Headings.H2)
	}
	if len(snap.Headings.H3) != 1 || snap.Headings.H3[0] != "Details" {
		t.Errorf("H3 = %q", snap.Headings.H3)
	}
}

func TestExtract_Images(t *testing.T) {
	snap := extractSample(t)

	if snap.Images.Total != 3 || len(snap.Images.List) != 3 {
		t.Fatalf("Images.Total = %d, len(List) = %d, want 3", snap.Images.Total, len(snap.Images.List))
	}
	if snap.Images.WithoutAlt != 2 {
		t.Errorf("WithoutAlt = %d, want 2", snap.Images.WithoutAlt)
	}
	if snap.Images.List[0].Src != "/a.png" || snap.Images.List[0].Alt != "A" {
		t.Errorf("List[0] = %+v", snap.Images.List[0])
	}
}

func TestExtract_Links(t *testing.T) {
	snap := extractSample(t)

	wantInternal := []string{"https://example.com/about", "https://EXAMPLE.com/contact"}
	if len(snap.Links.Internal) != len(wantInternal) {
		t.Fatalf("Internal = %v, want %v", snap.Links.Internal, wantInternal)
	}
	for i, want := range wantInternal {
		if snap.Links.Internal[i] != want {
			t.Errorf("Internal[%d] = %q, want %q", i, snap.Links.Internal[i], want)
		}
	}
	if len(snap.Links.External) != 1 || snap.Links.External[0] != "https://other.org/" {
		t.Errorf("External = %v", snap.Links.External)
	}
	if snap.Links.Total != 3 {
		t.Errorf("Total = %d, want 3", snap.Links.Total)
	}
}

func TestExtract_LinksResolveAgainstFinalURL(t *testing.T) {
	snap := Extract(&models.RenderedPage{
		URL:      "http://old.example.com/",
		FinalURL: "https://www.example.com/start/",
		HTML:     `<a href="next">n</a><a href="http://old.example.com/x">o</a>`,
	})

	if len(snap.Links.Internal) != 1 || snap.Links.Internal[0] != "https://www.example.com/start/next" {
		t.Errorf("Internal = %v", snap.Links.Internal)
	}
	if len(snap.Links.External) != 1 {
		t.Errorf("External = %v", snap.Links.External)
	}
}

func TestExtract_StructuredDataDropsInvalidBlocks(t *testing.T) {
	snap := extractSample(t)

	if len(snap.StructuredData) != 2 {
		t.Fatalf("StructuredData has %d blocks, want 2", len(snap.StructuredData))
	}
	if !snap.HasSchemaType("FAQPage") {
		t.Error("expected FAQPage block to be detected")
	}
	if !snap.HasSchemaType("Organization") {
		t.Error("expected Organization inside array block to be detected")
	}
	if snap.HasSchemaType("HowTo") {
		t.Error("unexpected HowTo block")
	}
}

func TestExtract_ListsCounted(t *testing.T) {
	if got := extractSample(t).Lists; got != 2 {
		t.Errorf("Lists = %d, want 2", got)
	}
}

func TestExtract_VisibleText(t *testing.T) {
	snap := extractSample(t)

	if strings.Contains(snap.VisibleText, "do not show") {
		t.Error("VisibleText contains script content")
	}
	if strings.Contains(snap.VisibleText, "color: red") {
		t.Error("VisibleText contains style content")
	}
	if !strings.Contains(snap.VisibleText, "First paragraph with bold text.") {
		t.Errorf("VisibleText missing paragraph, got %q", snap.VisibleText)
	}
	if !strings.Contains(snap.VisibleText, "First paragraph with bold text.\n\nSecond paragraph.") {
		t.Errorf("paragraphs not separated by blank line, got %q", snap.VisibleText)
	}
}

func TestExtract_PrefersBrowserText(t *testing.T) {
	snap := Extract(&models.RenderedPage{
		URL:         "https://example.com/",
		HTML:        "<p>dom text</p>",
		VisibleText: "browser text",
	})
	if snap.VisibleText != "browser text" {
		t.Errorf("VisibleText = %q, want browser text", snap.VisibleText)
	}
}

func TestExtract_TitlePrecedence(t *testing.T) {
	tests := []struct {
		name     string
		rendered string
		want     string
	}{
		{name: "engine title wins", rendered: " Updated By Script ", want: "Updated By Script"},
		{name: "falls back to document", rendered: "", want: "Example Store"},
		{name: "blank engine title", rendered: "   ", want: "Example Store"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := Extract(&models.RenderedPage{
				URL:   "https://example.com/",
				HTML:  samplePage,
				Title: tt.rendered,
			})
			if snap.Title != tt.want {
				t.Errorf("Title = %q, want %q", snap.Title, tt.want)
			}
		})
	}
}

func TestExtract_EmptyDocument(t *testing.T) {
	snap := Extract(&models.RenderedPage{URL: "https://example.com/"})

	if snap.Title != "" || snap.MetaDescription != "" {
		t.Errorf("expected empty title/meta, got %q / %q", snap.Title, snap.MetaDescription)
	}
	if snap.Images.Total != 0 || snap.Links.Total != 0 || len(snap.StructuredData) != 0 {
		t.Errorf("expected empty collections, got %+v", snap)
	}
	if snap.Headings.H1 == nil || snap.Links.Internal == nil {
		t.Error("collections should be empty slices, not nil")
	}
}
