package tokenizer

import (
	"strings"
	"testing"
)

var sampleTexts = map[string]string{
	"short": "Стоимость обучения 599000 рублей в год",
	"medium": `Очный формат обучения, два года. Проекты с индустриальными партнерами
        и исследования в области машинного обучения. Поступление по конкурсу
        портфолио или через вступительный экзамен. Иногородним студентам
        предоставляется общежитие. AI Product Manager, ML Engineer, Data Analyst.`,
	"long": strings.Repeat(`Программа готовит специалистов по управлению ИИ-продуктами:
        unit-экономика, A/B-тестирование, продуктовый discovery, дорожные карты
        и приоритизация. Ёмкие курсы по Python, SQL и статистике дополняют
        менеджерские дисциплины. `, 20),
}

func BenchmarkTokenize(b *testing.B) {
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = Tokenize(text)
			}
		})
	}
}

func BenchmarkTokenizeParallel(b *testing.B) {
	text := sampleTexts["medium"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = Tokenize(text)
		}
	})
}
