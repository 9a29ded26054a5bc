package objectclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseURL(t *testing.T) {
	bucket, key, ok := ParseURL("https://my-bucket.s3.us-east-2.amazonaws.com/doc-1/informe.pdf")
	assert.True(t, ok)
	assert.Equal(t, "my-bucket", bucket)
	assert.Equal(t, "doc-1/informe.pdf", key)
}

func TestParseURLRejectsNonObjectRefs(t *testing.T) {
	cases := []string{
		"",
		"doc-1/informe.pdf",
		"http://my-bucket.s3.us-east-2.amazonaws.com/doc-1/informe.pdf",
		"https://my-bucket.s3.us-east-2.amazonaws.com",
		"https://my-bucket.s3.us-east-2.amazonaws.com/",
		"https://.s3.us-east-2.amazonaws.com/doc-1/informe.pdf",
	}
	for _, c := range cases {
		_, _, ok := ParseURL(c)
		assert.False(t, ok, c)
	}
}
