// Package boardfile reads and writes boards as markdown documents: a YAML
// frontmatter header with the board metadata and an indented outline with one
// node per line, two spaces per depth level.
package boardfile

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/and07/mindsync/pkg/domain"
)

const frontmatterDelim = "---"

var (
	ErrNoFrontmatter = errors.New("board file missing frontmatter header")
	ErrEmptyOutline  = errors.New("board file has no outline entries")
	ErrBadIndent     = errors.New("outline indentation is not a multiple of two spaces")
)

// Meta is the frontmatter of a board file. It uses "mapstructure" tags so
// unknown YAML keys survive a round trip without breaking the decode.
type Meta struct {
	BoardID string `yaml:"board_id" mapstructure:"board_id"`
	Name    string `yaml:"name" mapstructure:"name"`
	Version uint64 `yaml:"version" mapstructure:"version"`

	// Extra collects frontmatter keys this version does not understand.
	Extra map[string]any `yaml:"-" mapstructure:",remain"`
}

// Parse decodes a board file. Node identities are not stored in the file;
// every import assigns fresh ids, so an imported board is a copy, not a
// reference to the original.
func Parse(data []byte) (*domain.Board, error) {
	meta, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, err
	}
	if meta.BoardID == "" {
		return nil, fmt.Errorf("%w: board_id is required", ErrNoFrontmatter)
	}

	tree, err := parseOutline(body)
	if err != nil {
		return nil, fmt.Errorf("board %s: %w", meta.BoardID, err)
	}

	name := meta.Name
	if name == "" {
		name = meta.BoardID
	}
	return &domain.Board{
		ID:      meta.BoardID,
		Name:    name,
		Tree:    tree,
		Version: meta.Version,
	}, nil
}

// Render encodes a board as a markdown document, the inverse of Parse up to
// node identity.
func Render(board *domain.Board) ([]byte, error) {
	meta := Meta{BoardID: board.ID, Name: board.Name, Version: board.Version}
	head, err := yaml.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to encode board %s frontmatter: %w", board.ID, err)
	}

	var buf bytes.Buffer
	buf.WriteString(frontmatterDelim + "\n")
	buf.Write(head)
	buf.WriteString(frontmatterDelim + "\n\n")
	writeOutline(&buf, board.Tree, board.Tree.RootID, 0)
	return buf.Bytes(), nil
}

// splitFrontmatter separates the YAML header from the outline body. The
// header goes through a generic map so Meta can keep unknown keys.
func splitFrontmatter(data []byte) (Meta, string, error) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	if !strings.HasPrefix(text, frontmatterDelim+"\n") {
		return Meta{}, "", ErrNoFrontmatter
	}
	rest := text[len(frontmatterDelim)+1:]
	end := strings.Index(rest, "\n"+frontmatterDelim)
	if end < 0 {
		return Meta{}, "", fmt.Errorf("%w: unterminated header", ErrNoFrontmatter)
	}
	header, body := rest[:end], rest[end+len(frontmatterDelim)+1:]
	if i := strings.Index(body, "\n"); i >= 0 {
		body = body[i+1:]
	} else {
		body = ""
	}

	raw := make(map[string]any)
	if err := yaml.Unmarshal([]byte(header), &raw); err != nil {
		return Meta{}, "", fmt.Errorf("failed to parse frontmatter: %w", err)
	}
	var meta Meta
	if err := mapstructure.Decode(raw, &meta); err != nil {
		return Meta{}, "", fmt.Errorf("failed to decode frontmatter: %w", err)
	}
	return meta, body, nil
}

// parseOutline builds a tree from indented "- " lines. The first entry is the
// root; each deeper entry attaches to the most recent entry one level up.
func parseOutline(body string) (*domain.Tree, error) {
	var (
		tree *domain.Tree
		// last node id seen at each depth
		stack []string
	)

	for lineNo, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimLeft(line, " ")
		if trimmed == "" || !strings.HasPrefix(trimmed, "- ") {
			continue
		}
		indent := len(line) - len(trimmed)
		if indent%2 != 0 {
			return nil, fmt.Errorf("%w: line %d", ErrBadIndent, lineNo+1)
		}
		depth := indent / 2
		description := strings.TrimSpace(trimmed[2:])

		if tree == nil {
			if depth != 0 {
				return nil, fmt.Errorf("outline must start at depth 0, line %d", lineNo+1)
			}
			root := domain.NewRootNode(description)
			tree = domain.NewTree(root)
			stack = []string{root.ID}
			continue
		}
		if depth == 0 {
			return nil, fmt.Errorf("outline has a second depth-0 entry at line %d", lineNo+1)
		}
		if depth > len(stack) {
			return nil, fmt.Errorf("%w: line %d skips a level", ErrBadIndent, lineNo+1)
		}

		node := domain.NewNode(description)
		next, err := tree.Apply(domain.Insert(stack[depth-1], node))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo+1, err)
		}
		tree = next
		stack = append(stack[:depth], node.ID)
	}

	if tree == nil {
		return nil, ErrEmptyOutline
	}
	return tree, nil
}

func writeOutline(buf *bytes.Buffer, tree *domain.Tree, id string, depth int) {
	node, ok := tree.Find(id)
	if !ok {
		return
	}
	buf.WriteString(strings.Repeat("  ", depth))
	buf.WriteString("- ")
	buf.WriteString(node.Description)
	buf.WriteString("\n")
	for _, childID := range node.ChildIDs {
		writeOutline(buf, tree, childID, depth+1)
	}
}
