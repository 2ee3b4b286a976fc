package dataset

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gmlewis/watertight/meshio"
)

// DynamicFaustSkip is the number of leading frames of every Dynamic
// FAUST sequence that are skipped. They hold the calibration pose.
const DynamicFaustSkip = 20

type scanner func(base string, l layout) ([]Sample, error)

var scanners = map[Type]scanner{
	ShapeNetV1:       scanShapeNetV1,
	DynamicFaust:     scanDynamicFaust,
	FreiHand:         scanFreiHand,
	TurbosquidAnimal: scanTurbosquidAnimal,
	Directory:        scanDirectory,
}

func subdirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasSuffix(e.Name(), ".lock") {
			dirs = append(dirs, e.Name())
		}
	}
	return dirs, nil
}

// filesWithExt returns the sorted names in dir ending in ext.
func filesWithExt(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ext || isWatertightArtifact(name) {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// scanShapeNetV1 reads <base>/<category>/<model>/model.obj.
func scanShapeNetV1(base string, l layout) ([]Sample, error) {
	cats, err := subdirs(base)
	if err != nil {
		return nil, err
	}
	var out []Sample
	for _, cat := range cats {
		models, err := subdirs(filepath.Join(base, cat))
		if err != nil {
			return nil, err
		}
		for _, model := range models {
			tag := cat + ":" + model
			p := filepath.Join(base, cat, model, "model.obj")
			out = append(out, &sample{tag: tag, category: cat, meshPath: p, watertightPath: l.path(tag, p, false)})
		}
	}
	return out, nil
}

// scanDynamicFaust reads <base>/<subject>/mesh_seq/<frame>.obj.
func scanDynamicFaust(base string, l layout) ([]Sample, error) {
	subjects, err := subdirs(base)
	if err != nil {
		return nil, err
	}
	var out []Sample
	for _, subject := range subjects {
		dir := filepath.Join(base, subject, "mesh_seq")
		frames, err := filesWithExt(dir, ".obj")
		if err != nil {
			return nil, err
		}
		if len(frames) <= DynamicFaustSkip {
			continue
		}
		for _, f := range frames[DynamicFaustSkip:] {
			tag := subject + ":" + strings.TrimSuffix(f, ".obj")
			p := filepath.Join(dir, f)
			out = append(out, &sample{tag: tag, category: subject, meshPath: p, watertightPath: l.path(tag, p, true)})
		}
	}
	return out, nil
}

// scanFreiHand reads <base>/<tag>.obj.
func scanFreiHand(base string, l layout) ([]Sample, error) {
	files, err := filesWithExt(base, ".obj")
	if err != nil {
		return nil, err
	}
	out := make([]Sample, 0, len(files))
	for _, f := range files {
		tag := strings.TrimSuffix(f, ".obj")
		p := filepath.Join(base, f)
		out = append(out, &sample{tag: tag, meshPath: p, watertightPath: l.path(tag, p, true)})
	}
	return out, nil
}

// scanTurbosquidAnimal reads <base>/<tag>/model.obj.
func scanTurbosquidAnimal(base string, l layout) ([]Sample, error) {
	tags, err := subdirs(base)
	if err != nil {
		return nil, err
	}
	out := make([]Sample, 0, len(tags))
	for _, tag := range tags {
		p := filepath.Join(base, tag, "model.obj")
		out = append(out, &sample{tag: tag, meshPath: p, watertightPath: l.path(tag, p, false)})
	}
	return out, nil
}

// scanDirectory walks base for every mesh file in a supported format. The
// tag is the slash-separated path relative to base without extension and
// the category is its first directory, if any.
func scanDirectory(base string, l layout) ([]Sample, error) {
	var out []Sample
	err := filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != base && strings.HasSuffix(d.Name(), ".lock") {
				return filepath.SkipDir
			}
			return nil
		}
		if _, err := meshio.FormatFromPath(p); err != nil || isWatertightArtifact(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(base, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		tag := strings.TrimSuffix(rel, filepath.Ext(rel))
		var category string
		if i := strings.Index(tag, "/"); i >= 0 {
			category = tag[:i]
		}
		out = append(out, &sample{tag: tag, category: category, meshPath: p, watertightPath: l.path(tag, p, true)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanDirectory: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tag() < out[j].Tag() })
	return out, nil
}
