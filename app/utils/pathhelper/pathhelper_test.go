package pathhelper

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtSet(t *testing.T) {
	set := NewExtSet(".PNG", "jpg", " ", ".jpeg")
	assert.True(t, set.Match("a.png"))
	assert.True(t, set.Match("dir/B.JPG"))
	assert.True(t, set.Match(`C:\images\c.jpeg`))
	assert.False(t, set.Match("notes.txt"))
	assert.False(t, set.Match("png"))
	assert.Len(t, set, 3)
}

func TestIsMacJunk(t *testing.T) {
	assert.True(t, IsMacJunk("__MACOSX/a.png"))
	assert.True(t, IsMacJunk("set/__MACOSX/._a.png"))
	assert.True(t, IsMacJunk("set/._a.png"))
	assert.True(t, IsMacJunk(".DS_Store"))
	assert.False(t, IsMacJunk("set/a.png"))
}

func TestIsHidden(t *testing.T) {
	assert.True(t, IsHidden("/drop/.a.png"))
	assert.True(t, IsHidden("/drop/a.png.part"))
	assert.True(t, IsHidden("/drop/a.zip.crdownload"))
	assert.False(t, IsHidden("/drop/a.png"))
}
