package detect

import "testing"

func TestClassifyByExtension(t *testing.T) {
	cases := map[string]Class{
		"photo.PNG":     Image,
		"scan.heic":     Image,
		"song.flac":     Audio,
		"track.mid":     Audio,
		"movie.avi":     Video,
		"clip.3gp":      Video,
		"doc.pdf":       PDF,
		"backup.tar":    Archive,
		"bundle.tar.gz": Archive,
		"sources.7z":    Archive,
	}
	for name, want := range cases {
		if got := Classify(name); got != want {
			t.Errorf("Classify(%q) = %s, want %s", name, got, want)
		}
	}
}

func TestExtensionBeatsMIME(t *testing.T) {
	// image/gif by MIME, but gif is on the video allow-list.
	if got := Classify("anim.gif"); got != Video {
		t.Errorf("gif should classify as video, got %s", got)
	}
}

func TestClassifyFallsBackToMIME(t *testing.T) {
	cases := map[string]Class{
		"logo.svg":  Image,
		"notes.txt": Text,
		"table.csv": Text,
		"data.json": Binary,
	}
	for name, want := range cases {
		if got := Classify(name); got != want {
			t.Errorf("Classify(%q) = %s, want %s", name, got, want)
		}
	}
}

func TestClassifyUnknownIsBinary(t *testing.T) {
	for _, name := range []string{"blob.qqq", "README", "archive.unknownext"} {
		if got := Classify(name); got != Binary {
			t.Errorf("Classify(%q) = %s, want binary", name, got)
		}
	}
}

func TestInjectedTables(t *testing.T) {
	d := New(Tables{
		Order: []Class{Archive},
		Exts:  map[Class]Set{Archive: NewSet("png")},
	})
	if got := d.Classify("weird.png"); got != Archive {
		t.Errorf("injected table should win, got %s", got)
	}
}
