package datasets

import (
	"os"
	"path"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCorpusFile(t *testing.T, rows []row) string {
	t.Helper()
	filePath := path.Join(t.TempDir(), "corpus.parquet")
	f, err := os.Create(filePath)
	require.NoError(t, err)
	require.NoError(t, parquet.Write(f, rows))
	require.NoError(t, f.Close())
	return filePath
}

func TestLoad(t *testing.T) {
	filePath := writeCorpusFile(t, []row{
		{Text: "Und frische Nahrung, neues Blut", Language: "de", Label: "iambus"},
		{Text: "Tell me not, in mournful numbers", Language: "en", Label: "trochee"},
		{Text: "Was this the face that launch'd a thousand ships", Language: "en", Label: "iambus"},
	})

	ds, err := Load(filePath, "meter")
	require.NoError(t, err)
	require.Len(t, ds, 3)

	assert.Equal(t, "de", ds[0].Language)
	assert.Equal(t, ds[0].Label, ds[2].Label, "same label string must map to same index")
	assert.NotEqual(t, ds[0].Label, ds[1].Label)
}

func TestLoad_PairTask(t *testing.T) {
	filePath := writeCorpusFile(t, []row{
		{Text: "The curfew tolls the knell of parting day", Text2: "The lowing herd wind slowly o'er the lea", Language: "en", Label: "AABB"},
	})

	ds, err := Load(filePath, "rhyme")
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.NotEmpty(t, ds[0].Text2)
}

func TestLoad_RejectsUnknownLabel(t *testing.T) {
	filePath := writeCorpusFile(t, []row{
		{Text: "some verse", Language: "en", Label: "spondee-ish"},
	})
	_, err := Load(filePath, "meter")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "spondee-ish")
}

func TestLoad_UnknownTask(t *testing.T) {
	_, err := Load("does-not-matter.parquet", "limericks")
	require.Error(t, err)
}

func TestCleanSentence(t *testing.T) {
	tests := []struct {
		name, text, language, want string
	}{
		{"whitespace", "a  verse\twith   gaps", "en", "a verse with gaps"},
		{"curly quotes", "“Ward” und ’sprach’", "de", `"Ward" und 'sprach'`},
		{"english clitics", "do n't stop , it 's fine", "en", "don't stop , it's fine"},
		{"german keeps spaces", "do n't", "de", "do n't"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CleanSentence(tc.text, tc.language))
		})
	}
}
