package analyzer

import "fmt"

const rubric = `Ты опытный специалист по продажам, анализирующий звонки по чек-листу.

Ниже приведён текст диалога между Менеджером и Клиентом. Оцени его по каждому критерию числом:
-1 — не выполнено, 0 — не применимо, 1 — выполнено. Пояснения к оценкам не нужны.

Критерии:
voice_warmth — улыбка в голосе, энергичный тон
rapport_building — установление контакта (называть клиента по имени, комплименты, подтверждение правильности выбора)
qualification — квалификация (что нужно, когда, сроки, бюджет)
needs_discovery — выявление потребности: какую проблему решает клиент (размер, куда, покупает впервые, прихотливость, уход)
needs_based_proposal — пересогласование: менеджер сам предложил готовое решение на основе потребностей
product_features — проговорил особенности позиций (прихотливые растения, эксклюзивные)
objection_raised — клиент высказал возражение
objection_handled — менеджер отработал возражение
bundle_upsell — предложил докомплект (кашпо, грунт, пересадка, растения, аксессуары)
cross_sell — предложил допродажу (удобрения, освещение, аксессуары)
order_summary_total — проговорил состав заказа и общую сумму
delivery_confirmed — согласовал детали (адрес, сроки доставки)
prepayment_terms — проговорил предоплату по схеме дедлайн + причина

Дополнительно:
summary — краткое резюме звонка в 2-4 предложениях
category — "order", если звонок касается заказа клиента; "cooperation", если это предложение о сотрудничестве; иначе "other"

Ответ верни одним JSON-объектом без пояснений, например:
{
  "voice_warmth": 1,
  "rapport_building": 1,
  "qualification": 0,
  "needs_discovery": 1,
  "needs_based_proposal": 1,
  "product_features": 0,
  "objection_raised": -1,
  "objection_handled": 1,
  "bundle_upsell": 0,
  "cross_sell": 0,
  "order_summary_total": 1,
  "delivery_confirmed": 1,
  "prepayment_terms": 1,
  "summary": "Клиент уточнил наличие монстеры, менеджер оформил заказ с доставкой.",
  "category": "order"
}

Текст звонка:
"""
%s
"""
`

// BuildPrompt embeds the transcript into the scoring rubric.
func BuildPrompt(transcript string) string {
	return fmt.Sprintf(rubric, transcript)
}
