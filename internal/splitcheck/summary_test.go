package splitcheck_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dividircuenta/split-check/internal/extraction"
	"github.com/dividircuenta/split-check/internal/splitcheck"
)

var _ = Describe("FormatSummary", func() {
	var engine *splitcheck.Engine

	BeforeEach(func() {
		engine = splitcheck.NewEngine([]extraction.Item{
			{Name: "Latte (2)", Quantity: 1, Price: 130.00},
			{Name: "Leche Deslactosada", Quantity: 1, Price: 10.00, IsModifier: true},
		})
		engine.AssignItem("item-0", 1)
		engine.AssignItem("item-1", 1)
	})

	It("renders the compact layout with tip", func() {
		text := splitcheck.FormatSummary(engine, 10, false)

		Expect(text).To(Equal("🧾 *Division de Cuenta*\n" +
			"━━━━━━━━━━━━\n" +
			"\n" +
			"👤 Yo: $140.00 + $14.00 = $154.00\n" +
			"👤 Persona 1: $0.00 + $0.00 = $0.00\n" +
			"\n" +
			"━━━━━━━━━━━━\n" +
			"💰 *Total:   $  140.00*\n" +
			"💰 *Con 10% de propina: $  154.00*"))
	})

	It("renders the compact layout without tip", func() {
		text := splitcheck.FormatSummary(engine, 0, false)

		Expect(text).To(Equal("🧾 *Division de Cuenta*\n" +
			"━━━━━━━━━━━━\n" +
			"\n" +
			"👤 Yo: $140.00\n" +
			"👤 Persona 1: $0.00\n" +
			"\n" +
			"━━━━━━━━━━━━\n" +
			"💰 *Total:   $  140.00*"))
	})

	It("renders the detailed layout with truncated item names", func() {
		text := splitcheck.FormatSummary(engine, 10, true)

		Expect(text).To(Equal("🧾 *Division de Cuenta*\n" +
			"━━━━━━━━━━━━\n" +
			"\n" +
			"👤 *Yo*\n" +
			"   Latte (2)      $  130.00\n" +
			"   Leche Deslacto $   10.00\n" +
			"   Consumo:       $  140.00\n" +
			"   Propina (10%): $   14.00\n" +
			"   *Total:        $  154.00*\n" +
			"\n" +
			"👤 *Persona 1*\n" +
			"   Consumo:       $    0.00\n" +
			"   Propina (10%): $    0.00\n" +
			"   *Total:        $    0.00*\n" +
			"\n" +
			"━━━━━━━━━━━━\n" +
			"💰 *Total:   $  140.00*\n" +
			"💰 *Con 10% de propina: $  154.00*"))
	})

	It("omits the tip lines in the detailed layout when the tip is zero", func() {
		text := splitcheck.FormatSummary(engine, 0, true)

		Expect(text).To(ContainSubstring("   Consumo:       $  140.00\n   *Total:        $  140.00*"))
		Expect(text).NotTo(ContainSubstring("Propina"))
		Expect(text).NotTo(ContainSubstring("Con 0%"))
	})

	It("never ends with a newline", func() {
		Expect(splitcheck.FormatSummary(engine, 10, false)).NotTo(HaveSuffix("\n"))
		Expect(splitcheck.FormatSummary(engine, 10, true)).NotTo(HaveSuffix("\n"))
	})

	It("clamps an out-of-range tip", func() {
		text := splitcheck.FormatSummary(engine, 150, false)
		Expect(text).To(ContainSubstring("Con 100% de propina"))
		Expect(text).To(ContainSubstring("$280.00"))
	})

	It("lists divided parts but not their header", func() {
		engine.DivideItem("item-0", 2)
		engine.AssignItem("item-0-part-1", 1)
		text := splitcheck.FormatSummary(engine, 0, true)

		Expect(text).To(ContainSubstring("Latte (2) (1/2"))
		Expect(text).NotTo(ContainSubstring("   Latte (2)      $"))
	})
})
