package textnorm

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "plain text is trimmed and collapsed", in: "  Monto:\n\tUSD   14  ", want: "Monto: USD 14"},
		{name: "latin-1 escapes", in: "Confirmaci=F3n de pago a pr=E9stamo", want: "Confirmación de pago a préstamo"},
		{name: "utf-8 escapes", in: "Transacci=C3=B3n aprobada", want: "Transacción aprobada"},
		{name: "soft line breaks", in: "Comercio Mon=\r\nto SUPER 99", want: "Comercio Monto SUPER 99"},
		{name: "encoded markup is decoded before stripping", in: "=3Cb=3EMonto=3C/b=3E: USD 5.00", want: "Monto : USD 5.00"},
		{name: "entities", in: "N&uacute;mero&nbsp;de&nbsp;Comprobante: 123 &amp; m&aacute;s", want: "Número de Comprobante: 123 & más"},
		{name: "numeric entities", in: "&#191;Preguntas&#x3F;", want: "¿Preguntas?"},
		{name: "unknown entity is kept", in: "a &bogus; b", want: "a &bogus; b"},
		{name: "tags and styles", in: "<html><style>td{color:red}</style><td>Lugar:</td><td>CAFE</td></html>", want: "Lugar: CAFE"},
		{name: "lowercase hex is not an escape", in: "a=bc", want: "a=bc"},
		{name: "trailing equals", in: "total =", want: "total ="},
		{name: "double-encoded entity", in: "AT&amp;amp;T", want: "AT&T"},
		{name: "double-encoded escape", in: "total =3D41 pts", want: "total A pts"},
		{name: "double-encoded markup", in: "a &amp;lt;b&amp;gt; c", want: "a c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := []string{
		"Confirmaci=F3n <b>de</b> pago &amp; m&aacute;s",
		"<p>Monto: USD 1,372.10</p>\n\n<p>Lugar: SUPER 99</p>",
		"Yappy recibido de Juan",
		"AT&amp;amp;T",
		"total =3D41 pts",
		"a &amp;lt;b&amp;gt; c",
		"https://bank.example/tx?id=3DAB12",
		"=3D=3D3D41",
	}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}
