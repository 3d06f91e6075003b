package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	p := New()
	assert.NotNil(t, p)
	assert.True(t, p.Supports("go"))
	assert.False(t, p.Supports("yaml"))
}

func TestBlocks_Go(t *testing.T) {
	content := `package main

import "fmt"

// User represents a user
type User struct {
	Name string
}

func (u *User) Greet() string {
	if u.Name == "" {
		return "hi {}"
	}
	return fmt.Sprintf("hi %s", u.Name)
}

func main() {
	fmt.Println((&User{}).Greet())
}
`
	blocks := New().Blocks(content, "go")
	require.Len(t, blocks, 3)

	assert.Equal(t, "User", blocks[0].Name)
	assert.Equal(t, KindClass, blocks[0].Kind)
	assert.Equal(t, 6, blocks[0].StartLine)
	assert.Equal(t, 8, blocks[0].EndLine)

	assert.Equal(t, "Greet", blocks[1].Name)
	assert.Equal(t, KindFunction, blocks[1].Kind)
	assert.Equal(t, 10, blocks[1].StartLine)
	assert.Equal(t, 15, blocks[1].EndLine, "braces inside strings are ignored")

	assert.Equal(t, "main", blocks[2].Name)
	assert.Equal(t, 17, blocks[2].StartLine)
	assert.Equal(t, 19, blocks[2].EndLine)
}

func TestBlocks_Python(t *testing.T) {
	content := `import os

@app.route("/login")
def login(user):
    query = "SELECT * FROM users WHERE name = '%s'" % user

    return db.execute(query)

class Repo:
    def find(self, id):
        return self.db.get(id)

    def save(self, obj):
        self.db.put(obj)

x = 1
`
	blocks := New().Blocks(content, "python")
	require.Len(t, blocks, 4)

	assert.Equal(t, "login", blocks[0].Name)
	assert.Equal(t, 3, blocks[0].StartLine, "decorators belong to the function")
	assert.Equal(t, 7, blocks[0].EndLine)

	assert.Equal(t, "Repo", blocks[1].Name)
	assert.Equal(t, KindClass, blocks[1].Kind)
	assert.Equal(t, 9, blocks[1].StartLine)
	assert.Equal(t, 14, blocks[1].EndLine)

	assert.Equal(t, "find", blocks[2].Name)
	assert.Equal(t, 10, blocks[2].StartLine)
	assert.Equal(t, 11, blocks[2].EndLine)

	top := TopLevel(blocks)
	require.Len(t, top, 2)
	assert.Equal(t, "login", top[0].Name)
	assert.Equal(t, "Repo", top[1].Name)

	inner, ok := Enclosing(blocks, 14)
	require.True(t, ok)
	assert.Equal(t, "save", inner.Name)

	_, ok = Enclosing(blocks, 16)
	assert.False(t, ok)
}

func TestBlocks_Ruby(t *testing.T) {
	content := `class Account
  def balance
    @balance
  end
end
`
	blocks := New().Blocks(content, "ruby")
	require.Len(t, blocks, 2)
	assert.Equal(t, "Account", blocks[0].Name)
	assert.Equal(t, 5, blocks[0].EndLine, "closing end is included")
	assert.Equal(t, "balance", blocks[1].Name)
	assert.Equal(t, 4, blocks[1].EndLine)
}

func TestBlocks_JavaScript(t *testing.T) {
	content := `const handler = async (req, res) => {
  res.send(eval(req.query.code));
};

export function render(html) {
  document.body.innerHTML = html;
}

const x = 5;
`
	blocks := New().Blocks(content, "javascript")
	require.Len(t, blocks, 2)
	assert.Equal(t, "handler", blocks[0].Name)
	assert.Equal(t, 3, blocks[0].EndLine)
	assert.Equal(t, "render", blocks[1].Name)
	assert.Equal(t, 5, blocks[1].StartLine)
	assert.Equal(t, 7, blocks[1].EndLine)
}

func TestBlocks_JavaIgnoresControlFlow(t *testing.T) {
	content := `public class Login {
    public boolean check(String user) {
        if (user == null) {
            return false;
        }
        return query(user);
    }
}
`
	blocks := New().Blocks(content, "java")
	require.Len(t, blocks, 2)
	assert.Equal(t, "Login", blocks[0].Name)
	assert.Equal(t, 8, blocks[0].EndLine)
	assert.Equal(t, "check", blocks[1].Name)
	assert.Equal(t, 2, blocks[1].StartLine)
	assert.Equal(t, 7, blocks[1].EndLine)
}

func TestBlocks_CSkipsPrototypes(t *testing.T) {
	content := `#include <stdio.h>

int helper(int x);

int main(int argc, char **argv) {
    char buf[8];
    strcpy(buf, argv[1]);
    return helper(0);
}
`
	blocks := New().Blocks(content, "c")
	require.Len(t, blocks, 1)
	assert.Equal(t, "main", blocks[0].Name)
	assert.Equal(t, 5, blocks[0].StartLine)
	assert.Equal(t, 9, blocks[0].EndLine)
}

func TestBlocks_RustLifetimes(t *testing.T) {
	content := `pub fn first<'a>(s: &'a str) -> &'a str {
    &s[..1]
}
`
	blocks := New().Blocks(content, "rust")
	require.Len(t, blocks, 1)
	assert.Equal(t, "first", blocks[0].Name)
	assert.Equal(t, 3, blocks[0].EndLine)
}

func TestBlocks_UnbalancedExtendsToEOF(t *testing.T) {
	content := "func broken() {\n\tx := 1\n"
	blocks := New().Blocks(content, "go")
	require.Len(t, blocks, 1)
	assert.Equal(t, 3, blocks[0].EndLine)
}

func TestBlocks_UnsupportedLanguage(t *testing.T) {
	assert.Nil(t, New().Blocks("key: value\n", "yaml"))
	assert.Nil(t, New().Blocks("", "go"))
}

func TestBlocks_Deterministic(t *testing.T) {
	content := "def a():\n    pass\n\ndef b():\n    pass\n"
	p := New()
	assert.Equal(t, p.Blocks(content, "python"), p.Blocks(content, "python"))
}
