package export

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func registryDataset() Dataset {
	return Dataset{
		Headers: []string{"Certificate ID", "Recipient", "Verification Code"},
		Rows: []map[string]string{
			{"Certificate ID": "cert-1", "Recipient": "Jane Doe", "Verification Code": "AB12CD34"},
			{"Certificate ID": "cert-2", "Recipient": "Kim Lee"},
		},
	}
}

func TestCSVRenderKeepsHeaderOrder(t *testing.T) {
	out, err := NewCSVExporter().Render(registryDataset())
	require.NoError(t, err)
	require.Equal(t,
		"Certificate ID,Recipient,Verification Code\n"+
			"cert-1,Jane Doe,AB12CD34\n"+
			"cert-2,Kim Lee,\n",
		string(out))
}

func TestCSVRenderRejectsEmptyHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	require.Error(t, err)
}

func TestPDFRenderProducesDocument(t *testing.T) {
	out, err := NewPDFExporter().Render(registryDataset(), "Certificate Registry")
	require.NoError(t, err)
	require.NotEmpty(t, out)
	require.Equal(t, "%PDF", string(out[:4]))
}

func TestPDFRenderRejectsEmptyHeaders(t *testing.T) {
	_, err := NewPDFExporter().Render(Dataset{}, "Certificate Registry")
	require.Error(t, err)
}
