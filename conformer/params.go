package conformer

import (
	"fmt"

	"github.com/openfluke/chorale/nn"
)

// VisitParams calls f for every learned tensor in a stable order with a
// hierarchical name. It backs the export artifact: visiting a freshly
// constructed model with the same configuration yields the same names
// and shapes, so weights can be restored positionally by name.
func (m *Model) VisitParams(f func(name string, t *nn.Tensor[float32])) {
	e := m.encoder
	f("encoder.embed.conv1.weight", e.embed.conv1.Weight)
	f("encoder.embed.conv1.bias", e.embed.conv1.Bias)
	f("encoder.embed.conv2.weight", e.embed.conv2.Weight)
	f("encoder.embed.conv2.bias", e.embed.conv2.Bias)
	visitLinear(f, "encoder.embed.out", e.embed.out)

	for i, l := range e.layers {
		p := fmt.Sprintf("encoder.layers.%d", i)
		visitFF(f, p+".ffn1", l.ffn1)
		visitAttention(f, p+".self_attn", l.selfAttn)
		visitLinear(f, p+".conv.pw1", l.conv.pw1)
		f(p+".conv.dw.weight", l.conv.dw.Weight)
		f(p+".conv.dw.bias", l.conv.dw.Bias)
		visitNorm(f, p+".conv.norm", l.conv.norm)
		visitLinear(f, p+".conv.pw2", l.conv.pw2)
		visitFF(f, p+".ffn2", l.ffn2)
		visitNorm(f, p+".norm_ff1", l.normFF1)
		visitNorm(f, p+".norm_mha", l.normMHA)
		visitNorm(f, p+".norm_conv", l.normConv)
		visitNorm(f, p+".norm_ff2", l.normFF2)
		visitNorm(f, p+".norm_final", l.normFinal)
	}

	visitLinear(f, "ctc.proj", m.ctc.Proj)

	if m.decoder != nil {
		visitDecoder(f, "decoder.left", m.decoder.left)
		if m.decoder.right != nil {
			visitDecoder(f, "decoder.right", m.decoder.right)
		}
	}
}

func visitDecoder(f func(string, *nn.Tensor[float32]), prefix string, d *TransformerDecoder) {
	f(prefix+".embed.weight", d.embed.Weight)
	for i, l := range d.layers {
		p := fmt.Sprintf("%s.layers.%d", prefix, i)
		visitAttention(f, p+".self_attn", l.selfAttn)
		visitAttention(f, p+".src_attn", l.srcAttn)
		visitFF(f, p+".ff", l.ff)
		visitNorm(f, p+".norm_self", l.normSelf)
		visitNorm(f, p+".norm_src", l.normSrc)
		visitNorm(f, p+".norm_ff", l.normFF)
	}
	visitNorm(f, prefix+".after_norm", d.afterNorm)
	visitLinear(f, prefix+".output", d.output)
}

func visitLinear(f func(string, *nn.Tensor[float32]), prefix string, l *nn.Linear) {
	f(prefix+".weight", l.Weight)
	f(prefix+".bias", l.Bias)
}

func visitFF(f func(string, *nn.Tensor[float32]), prefix string, ff *PositionwiseFeedForward) {
	visitLinear(f, prefix+".w1", ff.w1)
	visitLinear(f, prefix+".w2", ff.w2)
}

func visitAttention(f func(string, *nn.Tensor[float32]), prefix string, a *nn.MultiHeadAttention) {
	visitLinear(f, prefix+".q", a.WQ)
	visitLinear(f, prefix+".k", a.WK)
	visitLinear(f, prefix+".v", a.WV)
	visitLinear(f, prefix+".o", a.WO)
}

func visitNorm(f func(string, *nn.Tensor[float32]), prefix string, n *nn.LayerNorm) {
	f(prefix+".gamma", n.Gamma)
	f(prefix+".beta", n.Beta)
}
