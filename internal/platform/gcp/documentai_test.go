package gcp

import (
	"testing"

	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"cloud.google.com/go/speech/apiv1/speechpb"
)

func TestProcessorName(t *testing.T) {
	if got := processorName("p", "us", "abc", ""); got != "projects/p/locations/us/processors/abc" {
		t.Fatalf("processorName: got=%q", got)
	}
	if got := processorName("p", "eu", "abc", "v2"); got != "projects/p/locations/eu/processors/abc/processorVersions/v2" {
		t.Fatalf("processorName versioned: got=%q", got)
	}
	if got := processorName("", "us", "abc", ""); got != "" {
		t.Fatalf("processorName missing project: got=%q", got)
	}
}

func TestPageTextsSlicesAnchors(t *testing.T) {
	doc := &documentaipb.Document{
		Text: "page one text|page two",
		Pages: []*documentaipb.Document_Page{
			{Layout: &documentaipb.Document_Page_Layout{TextAnchor: &documentaipb.Document_TextAnchor{
				TextSegments: []*documentaipb.Document_TextAnchor_TextSegment{{StartIndex: 0, EndIndex: 13}},
			}}},
			{Layout: &documentaipb.Document_Page_Layout{TextAnchor: &documentaipb.Document_TextAnchor{
				TextSegments: []*documentaipb.Document_TextAnchor_TextSegment{{StartIndex: 14, EndIndex: 22}},
			}}},
			{Layout: &documentaipb.Document_Page_Layout{}},
		},
	}
	pages := pageTexts(doc)
	if len(pages) != 2 {
		t.Fatalf("pages: want=2 got=%d", len(pages))
	}
	if pages[0].Text != "page one text" || pages[1].Text != "page two" || pages[1].Page != 2 {
		t.Fatalf("pages: got=%+v", pages)
	}
}

func TestInferSpeechEncoding(t *testing.T) {
	cases := map[string]speechpb.RecognitionConfig_AudioEncoding{
		"a.WAV":  speechpb.RecognitionConfig_LINEAR16,
		"b.flac": speechpb.RecognitionConfig_FLAC,
		"c.mp3":  speechpb.RecognitionConfig_MP3,
		"d.ogg":  speechpb.RecognitionConfig_OGG_OPUS,
		"e.m4a":  speechpb.RecognitionConfig_ENCODING_UNSPECIFIED,
	}
	for name, want := range cases {
		if got := inferSpeechEncoding(name); got != want {
			t.Fatalf("%s: want=%v got=%v", name, want, got)
		}
	}
}
