package bus

import "testing"

func TestPublishReachesAllSubscribers(t *testing.T) {
	b := New()
	var first, second int
	b.Subscribe("topic", func() { first++ })
	b.Subscribe("topic", func() { second++ })

	b.Publish("topic")
	b.Publish("topic")

	if first != 2 || second != 2 {
		t.Errorf("calls = %d/%d, want 2/2", first, second)
	}
}

func TestPublishIgnoresOtherTopics(t *testing.T) {
	b := New()
	var calls int
	b.Subscribe("a", func() { calls++ })

	b.Publish("b")

	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	var calls int
	unsub := b.Subscribe("topic", func() { calls++ })

	b.Publish("topic")
	unsub()
	unsub() // safe to repeat
	b.Publish("topic")

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestPublishWithoutSubscribersIsHarmless(t *testing.T) {
	b := New()
	b.Publish(TopicForceLogout)
}

func TestSubscriberMayPublish(t *testing.T) {
	b := New()
	var chained int
	b.Subscribe("second", func() { chained++ })
	b.Subscribe("first", func() { b.Publish("second") })

	b.Publish("first")

	if chained != 1 {
		t.Errorf("chained calls = %d, want 1", chained)
	}
}
