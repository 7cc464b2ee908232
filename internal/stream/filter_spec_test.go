package stream_test

import (
	"github.com/usbtrack/usbtrack/internal/stream"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("FilterSink", func() {
	It("should forward only accepted values", func() {
		in := make(chan int, 10)
		sink := stream.FilterSink(stream.SinkFromChan(in), func(n int) bool {
			return n%2 == 0
		})

		for i := 0; i < 10; i++ {
			Expect(sink.Submit(i)).To(Succeed())
		}
		sink.Close()

		var got []int
		for v := range in {
			got = append(got, v)
		}
		Expect(got).To(Equal([]int{0, 2, 4, 6, 8}))
	})

	It("should forward nothing when the filter rejects all", func() {
		in := make(chan string, 2)
		sink := stream.FilterSink(stream.SinkFromChan(in), func(string) bool {
			return false
		})

		Expect(sink.Submit("hello")).To(Succeed())
		Expect(sink.Submit("world")).To(Succeed())
		sink.Close()

		var got []string
		for v := range in {
			got = append(got, v)
		}
		Expect(got).To(BeEmpty())
	})
})

var _ = Describe("Any", func() {
	It("should accept everything", func() {
		all := stream.Any[int]()
		Expect(all(0)).To(BeTrue())
		Expect(all(-7)).To(BeTrue())
	})
})

var _ = Describe("Or", func() {
	It("should return true if any filter returns true", func() {
		isEven := func(n int) bool { return n%2 == 0 }
		isDivisibleBy3 := func(n int) bool { return n%3 == 0 }

		combined := stream.Or(isEven, isDivisibleBy3)

		Expect(combined(1)).To(BeFalse())
		Expect(combined(2)).To(BeTrue())
		Expect(combined(3)).To(BeTrue())
		Expect(combined(5)).To(BeFalse())
		Expect(combined(6)).To(BeTrue())
	})

	It("should return false when no filters provided", func() {
		combined := stream.Or[int]()
		Expect(combined(42)).To(BeFalse())
	})
})
