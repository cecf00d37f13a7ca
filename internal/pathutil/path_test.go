package pathutil

import (
	"reflect"
	"testing"
)

func TestIsRooted(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"/a/b", true},
		{"/", true},
		{"a/b", false},
		{"", false},
		{"\\a", false},
	}

	for _, tt := range tests {
		if got := IsRooted(tt.input); got != tt.expected {
			t.Errorf("IsRooted(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestPathElements(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "empty", input: "", expected: []string{}},
		{name: "root only", input: "/", expected: []string{}},
		{name: "trailing delimiter", input: "/a/b/", expected: []string{"a", "b"}},
		{name: "many trailing delimiters", input: "/a/b///", expected: []string{"a", "b"}},
		{name: "relative", input: "a/b", expected: []string{"a", "b"}},
		{name: "single", input: "/x", expected: []string{"x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PathElements(tt.input)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("PathElements(%q) = %#v, want %#v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestDirectoryNameAndFileName(t *testing.T) {
	tests := []struct {
		input string
		dir   string
		file  string
	}{
		{input: "/a/b/c.txt", dir: "/a/b", file: "c.txt"},
		{input: "/c.txt", dir: "", file: "c.txt"},
		{input: "c.txt", dir: "", file: "c.txt"},
		{input: "/a/b/", dir: "/a/b", file: ""},
		{input: "", dir: "", file: ""},
	}

	for _, tt := range tests {
		if got := DirectoryName(tt.input); got != tt.dir {
			t.Errorf("DirectoryName(%q) = %q, want %q", tt.input, got, tt.dir)
		}
		if got := FileName(tt.input); got != tt.file {
			t.Errorf("FileName(%q) = %q, want %q", tt.input, got, tt.file)
		}
	}
}

func TestCombine(t *testing.T) {
	tests := []struct {
		left, right, expected string
	}{
		{"/a", "b", "/a/b"},
		{"/a/", "/b", "/a/b"},
		{"/a//", "b/", "/a/b/"},
		{"/a", "", "/a"},
		{"/a/", "", "/a/"},
		{"", "b", "/b"},
	}

	for _, tt := range tests {
		if got := Combine(tt.left, tt.right); got != tt.expected {
			t.Errorf("Combine(%q, %q) = %q, want %q", tt.left, tt.right, got, tt.expected)
		}
	}
}

func TestCombineInvertsSplit(t *testing.T) {
	paths := []string{"/a", "/a/b", "/a/b/c.txt", "/docs//notes.md", "/x/y/"}

	for _, p := range paths {
		got := Normalize(Combine(DirectoryName(p), FileName(p)))
		if want := Normalize(p); got != want {
			t.Errorf("round trip of %q gave %q, want %q", p, got, want)
		}
	}
}

func TestParentOrRootAndNormalize(t *testing.T) {
	if got := ParentOrRoot("/file.txt"); got != "/" {
		t.Errorf("ParentOrRoot(/file.txt) = %q, want /", got)
	}
	if got := ParentOrRoot("/a/file.txt"); got != "/a" {
		t.Errorf("ParentOrRoot(/a/file.txt) = %q, want /a", got)
	}
	if got := Normalize("a//b/./c/"); got != "/a/b/c" {
		t.Errorf("Normalize = %q, want /a/b/c", got)
	}
	if got := Normalize(""); got != "/" {
		t.Errorf("Normalize(\"\") = %q, want /", got)
	}
}
