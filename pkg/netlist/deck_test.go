package netlist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestElaborateLineal(t *testing.T) {
	deck, err := Elaborate(lineal)
	require.NoError(t, err)

	assert.Equal(t, "LINEAL", deck.Title)
	assert.True(t, deck.HasTran)
	assert.Equal(t, 2e-8, deck.TranParam.TStep)
	assert.Equal(t, 1e-5, deck.TranParam.TStop)
	assert.Equal(t, 2e-8, deck.TranParam.TMax)
	assert.False(t, deck.TranParam.UIC)
	assert.Equal(t, 27.0, deck.Temp)

	require.Len(t, deck.Elements, 6)
	vin := deck.Elements[0]
	assert.Equal(t, "V", vin.Type)
	require.NotNil(t, vin.Source)
	assert.Equal(t, SourcePulse, vin.Source.Kind)
	assert.Equal(t, []float64{0, 1, 0, 0, 0, 1e19, 1e20}, vin.Source.Args)

	lin := deck.Elements[4]
	assert.Equal(t, "lin", lin.Name)
	assert.Equal(t, "L", lin.Type)
	assert.Equal(t, 1e-3, lin.Value)
	assert.Equal(t, "0", lin.Params["ic"])

	assert.Len(t, deck.Nodes, 5)
}

func TestElaborateDirectivesAndSources(t *testing.T) {
	text := `* rc with sources
.temp 85
.tran 1u 1m 0 2u uic
V1 in 0 5
V2 a 0 SIN(0 1 1k)
I1 0 b PWL 0 0 1m 1m
.subckt inner a b
Q1 a b c QN
.ends
R1 in out 1k ; load
C1 out 0 1u IC=2.5
.end
R9 x y z
`
	deck, err := Elaborate(text)
	require.NoError(t, err)

	assert.Equal(t, "rc with sources", deck.Title)
	assert.Equal(t, 85.0, deck.Temp)
	assert.True(t, deck.TranParam.UIC)
	assert.Equal(t, 1e-6, deck.TranParam.TMax)
	require.Len(t, deck.Elements, 5)

	assert.Equal(t, SourceDC, deck.Elements[0].Source.Kind)
	assert.Equal(t, 5.0, deck.Elements[0].Value)
	assert.Equal(t, SourceSin, deck.Elements[1].Source.Kind)
	assert.Equal(t, []float64{0, 1, 1000}, deck.Elements[1].Source.Args)
	assert.Equal(t, SourcePWL, deck.Elements[2].Source.Kind)
	assert.Equal(t, "2.5", deck.Elements[4].Params["ic"])
}

func TestElaborateErrors(t *testing.T) {
	cases := map[string]string{
		"unsupported element": "t\nD1 a 0 DMOD\n",
		"bad value":           "t\nR1 a 0 1x?\n",
		"missing value":       "t\nC1 a 0 IC=1\n",
		"short tran":          "t\n.tran 1u\n",
		"pulse arity":         "t\nV1 a 0 PULSE(0 1)\n",
		"pwl order":           "t\nV1 a 0 PWL(0 0 0 1)\n",
		"open paren":          "t\nV1 a 0 SIN(0 1 1k\n",
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Elaborate(text)
			require.Error(t, err)
		})
	}

	_, err := Elaborate("t\nX1 a b sub\n")
	require.ErrorIs(t, err, ErrUnsupportedElement)
}

func TestElaborateContinuationAndComments(t *testing.T) {
	text := "t\r\n" +
		"V1 in 0 PULSE(0 1 0 ; leading args\r\n" +
		"+1u 1u 5u 10u)\r\n" +
		"* full line comment\r\n" +
		"R1 in 0 2k;no blank before comment\r\n"
	deck, err := Elaborate(text)
	require.NoError(t, err)

	require.Len(t, deck.Elements, 2)
	assert.Equal(t, []float64{0, 1, 0, 1e-6, 1e-6, 5e-6, 1e-5}, deck.Elements[0].Source.Args)
	assert.Equal(t, 2000.0, deck.Elements[1].Value)
}
