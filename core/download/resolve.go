package download

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/odhiambocuttice/instagram-audio-downloader/model"
)

// in-progress suffixes left by the engine that must never be served.
var partialSuffixes = []string{".part", ".ytdl", ".temp"}

// ResolveArtifact finds the transcoded file for meta inside dir and returns
// its name relative to dir. Lookup order: "<id><ext>", the path the engine
// reported, then the first directory entry (sorted) whose name contains the id.
func ResolveArtifact(dir string, meta *Metadata, ext string) (string, error) {
	if meta == nil || meta.ID == "" {
		return "", model.NewError(model.KindEngine, "engine reported no media id")
	}

	exact := meta.ID + ext
	if isRegularFile(filepath.Join(dir, exact)) {
		return exact, nil
	}

	if meta.Filename != "" {
		reported := meta.Filename
		if !filepath.IsAbs(reported) {
			reported = filepath.Join(dir, reported)
		}
		// The engine reports the pre-conversion name; the converted file keeps the stem.
		candidates := []string{strings.TrimSuffix(reported, filepath.Ext(reported)) + ext, reported}
		for _, c := range candidates {
			if rel, ok := within(dir, c); ok && !isPartial(rel) && isRegularFile(c) {
				return rel, nil
			}
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", model.WrapError(model.KindIO, "scan media dir", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && strings.Contains(e.Name(), meta.ID) && !isPartial(e.Name()) {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", model.NotFoundError("downloaded file for %s not found", meta.ID)
	}
	sort.Strings(names)
	return names[0], nil
}

func within(dir, path string) (string, bool) {
	rel, err := filepath.Rel(dir, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") || strings.ContainsRune(rel, filepath.Separator) {
		return "", false
	}
	return rel, true
}

func isPartial(name string) bool {
	for _, s := range partialSuffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
