package index

import (
	"fmt"
	"testing"
)

var vocabulary = []string{
	"обучение", "формат", "очный", "онлайн", "стоимость", "общежитие",
	"экзамен", "портфолио", "карьера", "продукт", "машинное", "данные",
	"python", "sql", "ml", "ai", "партнеры", "исследования", "студенты", "год",
}

func syntheticDocs(n, length int) []Document {
	docs := make([]Document, n)
	for i := range docs {
		buf := make([]byte, 0, length*12)
		for j := 0; j < length; j++ {
			if j > 0 {
				buf = append(buf, ' ')
			}
			buf = append(buf, vocabulary[(i*7+j*3)%len(vocabulary)]...)
		}
		docs[i] = Document{ID: fmt.Sprintf("doc-%d", i), Text: string(buf)}
	}
	return docs
}

func BenchmarkBuild(b *testing.B) {
	for _, n := range []int{10, 100, 1000} {
		docs := syntheticDocs(n, 200)
		b.Run(fmt.Sprintf("docs_%d", n), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := Build(docs); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
