// Package ratelimit は共有キー/値ストア上の固定ウィンドウ方式で、呼び出し元ごと・操作種別ごとの
// リクエスト数を制限する。
//
// カウンタは (ID, 種別, ウィンドウ番号) をキーとし、ウィンドウ長のTTLで自動的に消える。
// 読み取りと書き込みの間に排他は無く、同時リクエストが同じ古い値を読んで両方とも許可されうる。
// 課金用途の厳密な計量ではなく、濫用抑止のためのベストエフォートな制限である。
// ウィンドウ境界をまたぐと最大で公称値の約2倍まで通ることも許容する。
package ratelimit
