// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package instrument

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Apply returns src with the statements of insertions inserted before their line, indented like the statement at
// that line. Insertions past the end of src are appended. Line numbers refer to src.
func Apply(src []byte, insertions []Insertion) []byte {
	text := string(src)
	newline := "\n"
	if strings.Contains(text, "\r\n") {
		newline = "\r\n"
	}
	trailing := strings.HasSuffix(text, newline)
	lines := strings.Split(strings.TrimSuffix(text, newline), newline)
	if text == "" {
		lines = nil
	}

	byLine := map[int][]Insertion{}
	for _, ins := range insertions {
		line := ins.Line
		if line < 1 {
			line = 1
		}
		if line > len(lines)+1 {
			line = len(lines) + 1
		}
		byLine[line] = append(byLine[line], ins)
	}

	var out []string
	for i := 1; i <= len(lines)+1; i++ {
		for _, ins := range byLine[i] {
			for _, l := range ins.Lines {
				out = append(out, ins.Indent+l)
			}
		}
		if i <= len(lines) {
			out = append(out, lines[i-1])
		}
	}
	res := strings.Join(out, newline)
	if trailing || len(lines) == 0 {
		res += newline
	}
	return []byte(res)
}

// WriteInstrumented copies the code directories dirs from srcRoot to outDir, then applies the plan to the copied
// files. Paths are relative to the roots. It returns the list of files modified.
func WriteInstrumented(p *Plan, srcRoot, outDir string, dirs []string) ([]string, error) {
	for _, d := range dirs {
		if err := copyDir(filepath.Join(srcRoot, filepath.FromSlash(d)), filepath.Join(outDir,
			filepath.FromSlash(d))); err != nil {
			return nil, fmt.Errorf("could not copy %s: %w", d, err)
		}
	}
	var written []string
	for _, file := range p.Files() {
		src, err := os.ReadFile(filepath.Join(srcRoot, filepath.FromSlash(file)))
		if err != nil {
			return written, fmt.Errorf("could not read %s: %w", file, err)
		}
		dst := filepath.Join(outDir, filepath.FromSlash(file))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return written, err
		}
		if err := os.WriteFile(dst, Apply(src, p.For(file)), 0o644); err != nil {
			return written, fmt.Errorf("could not write %s: %w", dst, err)
		}
		written = append(written, dst)
	}
	return written, nil
}

func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, b, 0o644)
	})
}
